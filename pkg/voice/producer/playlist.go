// Package producer implements the per-guild Audio Producer: the song
// queue, loop modes, and the cancellable decode-and-stream worker that
// feeds the session worker's frame mailbox.
package producer

import "github.com/google/uuid"

// SongType names which streaming source a Song resolves through.
type SongType int

const (
	SongSoundCloud SongType = iota
	SongYouTube
)

// String renders the SongType for logging.
func (t SongType) String() string {
	switch t {
	case SongSoundCloud:
		return "soundcloud"
	case SongYouTube:
		return "youtube"
	default:
		return "unknown"
	}
}

// Song is a single queue entry. Handle is the source-specific resolve
// handle obtained from a Source's Resolve call; it is opaque to
// everything except the source that produced it.
type Song struct {
	ID          string
	Type        SongType
	Query       string
	AddedByID   string
	AddedByName string
	Handle      any
}

// NewSong returns a Song with a freshly generated ID.
func NewSong(typ SongType, query, addedByID, addedByName string) Song {
	return Song{
		ID:          uuid.NewString(),
		Type:        typ,
		Query:       query,
		AddedByID:   addedByID,
		AddedByName: addedByName,
	}
}

// Playlist is the per-guild queue: an ordered slice of Song, the currently
// playing Song (possibly empty), and the two independent loop flags.
type Playlist struct {
	queue        []Song
	current      *Song
	loopSong     bool
	loopAll      bool
}

// NewPlaylist returns an empty playlist.
func NewPlaylist() *Playlist {
	return &Playlist{}
}

// Enqueue appends s to the tail of the queue.
func (p *Playlist) Enqueue(s Song) {
	p.queue = append(p.queue, s)
}

// Current returns the currently playing song, or nil if none.
func (p *Playlist) Current() *Song { return p.current }

// Queue returns a copy of the pending queue, in order.
func (p *Playlist) Queue() []Song {
	out := make([]Song, len(p.queue))
	copy(out, p.queue)
	return out
}

// SetQueue replaces the pending queue wholesale, used by set_playlist.
func (p *Playlist) SetQueue(songs []Song) {
	p.queue = append([]Song(nil), songs...)
}

// IsEmpty reports whether there is neither a current song nor any queued.
func (p *Playlist) IsEmpty() bool {
	return p.current == nil && len(p.queue) == 0
}

// LoopSong reports the loop-song flag.
func (p *Playlist) LoopSong() bool { return p.loopSong }

// SetLoopSong sets the loop-song flag.
func (p *Playlist) SetLoopSong(v bool) { p.loopSong = v }

// LoopAll reports the loop-all flag.
func (p *Playlist) LoopAll() bool { return p.loopAll }

// SetLoopAll sets the loop-all flag.
func (p *Playlist) SetLoopAll(v bool) { p.loopAll = v }

// MoveInQueue swaps the songs at positions i and j, mirroring the original
// engine's modifyQueue (a swap, not a three-way move-to rotation). i and j
// out of range are no-ops.
func (p *Playlist) MoveInQueue(i, j int) {
	if i < 0 || j < 0 || i >= len(p.queue) || j >= len(p.queue) {
		return
	}
	p.queue[i], p.queue[j] = p.queue[j], p.queue[i]
}

// popHead removes and returns the queue head, or nil if empty.
func (p *Playlist) popHead() *Song {
	if len(p.queue) == 0 {
		return nil
	}
	head := p.queue[0]
	p.queue = p.queue[1:]
	return &head
}

// pushHead prepends s to the queue.
func (p *Playlist) pushHead(s Song) {
	p.queue = append([]Song{s}, p.queue...)
}

// pushTail appends s to the queue.
func (p *Playlist) pushTail(s Song) {
	p.queue = append(p.queue, s)
}

// setCurrent installs s (or nil) as the current song.
func (p *Playlist) setCurrent(s *Song) {
	p.current = s
}

// advance chooses the next song once the current one has just finished
// (naturally, or because skip() already cleared it).
//
// loop_song keeps replaying the same currentSong forever once assigned —
// the decode worker is simply restarted against the same Song, so
// currentSong itself is never reassigned again. loop_all evicts the
// just-finished song to the tail and promotes the queue head, cycling
// through the original multiset indefinitely. The normal case pops the
// head, or clears currentSong when the queue is exhausted.
func (p *Playlist) advance() {
	switch {
	case p.loopSong:
		if p.current == nil && len(p.queue) > 0 {
			p.setCurrent(p.popHead())
		}
	case p.loopAll:
		switch {
		case p.current == nil && len(p.queue) > 0:
			p.setCurrent(p.popHead())
		case p.current != nil && len(p.queue) > 0:
			old := *p.current
			p.pushTail(old)
			p.setCurrent(p.popHead())
		}
		// current != nil && queue empty: steady single-song loop, keep current
	default:
		if len(p.queue) > 0 {
			p.setCurrent(p.popHead())
		} else {
			p.setCurrent(nil)
		}
	}
}

// skip re-enqueues the current song when looping is on (to the tail, so
// loop_all's normal eviction order just runs once more; loop_song's single
// song lands right back at the head of an otherwise empty queue), then
// immediately promotes the next song. No completion event is fired for a
// skip.
func (p *Playlist) skip() {
	if (p.loopSong || p.loopAll) && p.current != nil {
		old := *p.current
		p.pushTail(old)
	}
	p.setCurrent(nil)
	p.advance()
}

// stop halts playback: the current song (if any) is prepended back onto
// the queue head so it plays first if the queue is resumed, and
// currentSong is cleared. Unlike skip, stop does not promote a
// replacement — the producer stays idle until something resumes it.
func (p *Playlist) stop() {
	if p.current != nil {
		old := *p.current
		p.pushHead(old)
	}
	p.setCurrent(nil)
}
