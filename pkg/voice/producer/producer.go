package producer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/glyphwing/glyphwing/pkg/voice/frame"
)

// detachGrace is how long cancelWorkerLocked waits for a decode worker to
// notice its stop token before the worker is abandoned and its resources
// released unconditionally. Whether this grace period is load-bearing or
// merely conservative is not evident from the original source; kept as a
// fixed constant so behavior is at least deterministic and testable.
const detachGrace = 10 * time.Second

// Source is the external streaming-source collaborator consumed by the
// decode worker: search, resolve, and stream audio for a Song, cooperating
// with a cancellation context.
type Source interface {
	Search(ctx context.Context, query string) ([]Song, error)
	Resolve(ctx context.Context, s Song) (Song, error)
	DownloadAndStream(ctx context.Context, s Song, mailbox *frame.Mailbox, offset time.Duration) error
	IsWorking() bool
}

// CompletionHandler is invoked exactly once per currentSong that reaches
// end-of-stream without being skipped.
type CompletionHandler func(frame.CompletionEvent)

// Producer is the per-guild Audio Producer: it owns the playlist, the
// frame mailbox, and the lifecycle of the decode worker.
type Producer struct {
	guildID string
	logger  *slog.Logger
	sources map[SongType]Source

	mailbox *frame.Mailbox

	mu       sync.Mutex
	playlist *Playlist
	paused   bool
	handler  CompletionHandler

	cancel    context.CancelFunc
	workerDone chan struct{}
}

// New returns a Producer for one guild, writing into mailbox and
// resolving Song.Type through sources.
func New(guildID string, mailbox *frame.Mailbox, sources map[SongType]Source, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{
		guildID:  guildID,
		logger:   logger,
		sources:  sources,
		mailbox:  mailbox,
		playlist: NewPlaylist(),
	}
}

// Enqueue appends a song and, if nothing is currently playing, promotes
// and starts it immediately.
func (p *Producer) Enqueue(s Song) {
	p.mu.Lock()
	p.playlist.Enqueue(s)
	started := p.maybeAdvanceAndStartLocked()
	p.mu.Unlock()
	_ = started
}

// Skip cancels the running decode worker, clears the mailbox, and applies
// the skip advancement rule, starting the newly promoted song if any. No
// completion event is fired.
func (p *Producer) Skip() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelWorkerLocked()
	p.mailbox.Clear()
	p.playlist.skip()
	p.maybeAdvanceAndStartLocked()
}

// Stop cancels the running decode worker, clears the mailbox, prepends
// the current song back onto the queue, and detaches the completion
// handler. Playback stays idle until Enqueue resumes it.
func (p *Producer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelWorkerLocked()
	p.mailbox.Clear()
	p.playlist.stop()
	p.handler = nil
}

// PauseToggle flips between playing and paused without touching the
// playlist; while paused the decode worker is not cancelled and keeps
// writing frames into the mailbox, and the engine's voice worker leaves
// the mailbox undrained until playback is unpaused.
func (p *Producer) PauseToggle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = !p.paused
	return p.paused
}

// Paused reports whether playback is currently paused.
func (p *Producer) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// SetLoopSong sets the loop-song flag.
func (p *Producer) SetLoopSong(v bool) {
	p.mu.Lock()
	p.playlist.SetLoopSong(v)
	p.mu.Unlock()
}

// SetLoopAll sets the loop-all flag.
func (p *Producer) SetLoopAll(v bool) {
	p.mu.Lock()
	p.playlist.SetLoopAll(v)
	p.mu.Unlock()
}

// MoveInQueue swaps the songs at positions i and j.
func (p *Producer) MoveInQueue(i, j int) {
	p.mu.Lock()
	p.playlist.MoveInQueue(i, j)
	p.mu.Unlock()
}

// CurrentSong returns the currently playing song, or nil.
func (p *Producer) CurrentSong() *Song {
	p.mu.Lock()
	defer p.mu.Unlock()
	cur := p.playlist.Current()
	if cur == nil {
		return nil
	}
	copySong := *cur
	return &copySong
}

// Playlist returns a snapshot of the pending queue.
func (p *Producer) Playlist() []Song {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playlist.Queue()
}

// SetPlaylist replaces the pending queue wholesale.
func (p *Producer) SetPlaylist(songs []Song) {
	p.mu.Lock()
	p.playlist.SetQueue(songs)
	p.mu.Unlock()
}

// OnCompletion registers the handler invoked when the current song
// reaches natural end-of-stream. Replaces any previously registered
// handler.
func (p *Producer) OnCompletion(h CompletionHandler) {
	p.mu.Lock()
	p.handler = h
	p.mu.Unlock()
}

// maybeAdvanceAndStartLocked promotes a song from the queue if none is
// currently playing and starts its decode worker. Caller must hold mu.
func (p *Producer) maybeAdvanceAndStartLocked() bool {
	if p.playlist.Current() == nil {
		p.playlist.advance()
	}
	cur := p.playlist.Current()
	if cur == nil || p.workerDone != nil {
		return false
	}
	p.startWorkerLocked(*cur)
	return true
}

// startWorkerLocked spawns the decode-and-stream worker for song. Caller
// must hold mu.
func (p *Producer) startWorkerLocked(song Song) {
	source, ok := p.sources[song.Type]
	if !ok {
		p.logger.Error("producer: no source registered for song type", "type", song.Type, "guild", p.guildID)
		p.fireCompletionLocked(true)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	done := make(chan struct{})
	p.workerDone = done

	go func() {
		defer close(done)
		err := source.DownloadAndStream(ctx, song, p.mailbox, 0)
		wasFailure := err != nil && ctx.Err() == nil
		if ctx.Err() != nil {
			// cancelled by skip/stop: no completion event fires for this song
			return
		}
		p.mu.Lock()
		p.fireCompletionLocked(wasFailure)
		p.workerDone = nil
		p.playlist.advance()
		next := p.playlist.Current()
		p.mu.Unlock()
		if next != nil {
			p.mu.Lock()
			p.startWorkerLocked(*next)
			p.mu.Unlock()
		}
	}()
}

// fireCompletionLocked invokes the registered handler, if any, with the
// guild-member attribution of the song that just finished. Caller must
// hold mu.
func (p *Producer) fireCompletionLocked(wasFailure bool) {
	if p.handler == nil {
		return
	}
	cur := p.playlist.Current()
	member := ""
	if cur != nil {
		member = cur.AddedByID
	}
	p.handler(frame.CompletionEvent{GuildID: p.guildID, GuildMember: member, WasFailure: wasFailure})
}

// cancelWorkerLocked requests the running decode worker to stop and waits
// up to detachGrace for it to finish; beyond that it is abandoned and its
// resources are released unconditionally when the goroutine eventually
// notices the cancellation. Caller must hold mu.
func (p *Producer) cancelWorkerLocked() {
	if p.cancel == nil {
		return
	}
	cancel := p.cancel
	done := p.workerDone
	p.cancel = nil
	p.workerDone = nil

	// release the lock while waiting so the worker's own completion path
	// (which re-acquires mu) cannot deadlock against this call
	p.mu.Unlock()
	cancel()
	select {
	case <-done:
	case <-time.After(detachGrace):
		p.logger.Warn("producer: decode worker did not stop within grace period, abandoning", "guild", p.guildID)
	}
	p.mu.Lock()
}
