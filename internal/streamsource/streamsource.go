// Package streamsource adapts external streaming platforms (SoundCloud,
// YouTube) to the producer.Source interface by piping yt-dlp's extracted
// audio stream through ffmpeg into raw PCM, the same two-process pipeline
// the retrieval pack's music bots use for Discord voice output.
package streamsource

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync/atomic"
	"time"

	"github.com/glyphwing/glyphwing/pkg/voice/codec"
	"github.com/glyphwing/glyphwing/pkg/voice/frame"
	"github.com/glyphwing/glyphwing/pkg/voice/producer"
)

// pcmChunkBytes is one 20ms frame of interleaved 16-bit stereo PCM at
// 48kHz: FrameSamples * Channels * 2 bytes/sample.
const pcmChunkBytes = codec.FrameSamples * codec.Channels * 2

// Source streams audio for one platform by shelling out to yt-dlp and
// ffmpeg. searchPrefix names the yt-dlp search provider (ytsearch for
// YouTube, scsearch for SoundCloud) used to turn a free-text query into a
// playable URL.
type Source struct {
	logger       *slog.Logger
	searchPrefix string
	songType     producer.SongType
	working      atomic.Bool
}

// NewYouTube returns a Source that resolves queries via yt-dlp's
// "ytsearch" provider.
func NewYouTube(logger *slog.Logger) *Source {
	return newSource(logger, "ytsearch", producer.SongYouTube)
}

// NewSoundCloud returns a Source that resolves queries via yt-dlp's
// "scsearch" provider.
func NewSoundCloud(logger *slog.Logger) *Source {
	return newSource(logger, "scsearch", producer.SongSoundCloud)
}

func newSource(logger *slog.Logger, searchPrefix string, songType producer.SongType) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{logger: logger, searchPrefix: searchPrefix, songType: songType}
}

// ytdlpEntry is the subset of yt-dlp's --dump-json output this package
// reads.
type ytdlpEntry struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	URL     string  `json:"webpage_url"`
	Uploader string `json:"uploader"`
}

// Search runs a bounded yt-dlp search and returns up to 10 candidate
// songs, each carrying its resolved webpage URL as its Handle.
func (s *Source) Search(ctx context.Context, query string) ([]producer.Song, error) {
	s.working.Store(true)
	defer s.working.Store(false)

	spec := fmt.Sprintf("%s10:%s", s.searchPrefix, query)
	cmd := exec.CommandContext(ctx, "yt-dlp", "--flat-playlist", "--dump-json", spec)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("streamsource: yt-dlp search: %w", err)
	}

	var songs []producer.Song
	dec := json.NewDecoder(bytes.NewReader(out))
	for dec.More() {
		var entry ytdlpEntry
		if err := dec.Decode(&entry); err != nil {
			break
		}
		song := producer.NewSong(s.songType, query, "", "")
		song.Handle = entry.URL
		songs = append(songs, song)
	}
	return songs, nil
}

// Resolve is a no-op for this source: the playable URL is already
// resolved by Search and stored in Handle.
func (s *Source) Resolve(_ context.Context, song producer.Song) (producer.Song, error) {
	return song, nil
}

// IsWorking reports whether a Search or DownloadAndStream call is
// currently in flight on this source.
func (s *Source) IsWorking() bool { return s.working.Load() }

// DownloadAndStream pipes yt-dlp's best-audio extraction through ffmpeg
// into raw s16le PCM at 48kHz stereo, and writes it into mailbox one
// 20ms frame at a time as RawPCM AudioFrames. offset seeks ffmpeg's input
// via -ss before decoding begins.
func (s *Source) DownloadAndStream(ctx context.Context, song producer.Song, mailbox *frame.Mailbox, offset time.Duration) error {
	s.working.Store(true)
	defer s.working.Store(false)

	url, _ := song.Handle.(string)
	if url == "" {
		return fmt.Errorf("streamsource: song %s has no resolved URL", song.ID)
	}

	ytdlp := exec.CommandContext(ctx, "yt-dlp", "-f", "bestaudio", "-o", "-", url)
	ffmpegArgs := []string{
		"-nostdin", "-hide_banner", "-loglevel", "warning",
		"-ss", fmt.Sprintf("%.3f", offset.Seconds()),
		"-i", "pipe:0",
		"-vn", "-ac", fmt.Sprint(codec.Channels), "-ar", fmt.Sprint(codec.SampleRate),
		"-f", "s16le", "pipe:1",
	}
	ffmpeg := exec.CommandContext(ctx, "ffmpeg", ffmpegArgs...)

	pipe, err := ytdlp.StdoutPipe()
	if err != nil {
		return fmt.Errorf("streamsource: yt-dlp stdout pipe: %w", err)
	}
	ffmpeg.Stdin = pipe
	stdout, err := ffmpeg.StdoutPipe()
	if err != nil {
		return fmt.Errorf("streamsource: ffmpeg stdout pipe: %w", err)
	}

	if err := ytdlp.Start(); err != nil {
		return fmt.Errorf("streamsource: start yt-dlp: %w", err)
	}
	if err := ffmpeg.Start(); err != nil {
		_ = ytdlp.Process.Kill()
		return fmt.Errorf("streamsource: start ffmpeg: %w", err)
	}

	go func() {
		if err := ytdlp.Wait(); err != nil && ctx.Err() == nil {
			s.logger.Warn("streamsource: yt-dlp exited unexpectedly", "song", song.ID, "error", err)
		}
	}()

	reader := bufio.NewReaderSize(stdout, pcmChunkBytes*4)
	chunk := make([]byte, pcmChunkBytes)
	for {
		if ctx.Err() != nil {
			_ = ffmpeg.Process.Kill()
			_ = ytdlp.Process.Kill()
			return ctx.Err()
		}
		n, err := io.ReadFull(reader, chunk)
		if n > 0 {
			payload := make([]byte, n)
			copy(payload, chunk[:n])
			mailbox.Send(frame.AudioFrame{
				Kind:    frame.RawPCM,
				Payload: payload,
				Samples: n / (codec.Channels * 2),
				Member:  song.AddedByID,
			})
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			_ = ffmpeg.Wait()
			return fmt.Errorf("streamsource: read pcm: %w", err)
		}
	}
	return ffmpeg.Wait()
}
