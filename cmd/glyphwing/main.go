// Command glyphwing is the main entry point for the Glyphwing voice engine.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/glyphwing/glyphwing/internal/config"
	"github.com/glyphwing/glyphwing/internal/discordshard"
	"github.com/glyphwing/glyphwing/internal/observe"
	"github.com/glyphwing/glyphwing/internal/streamsource"
	"github.com/glyphwing/glyphwing/pkg/voice"
	"github.com/glyphwing/glyphwing/pkg/voice/codec"
	"github.com/glyphwing/glyphwing/pkg/voice/producer"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "glyphwing: config file %q not found — pass -config with the path to a YAML configuration file\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "glyphwing: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("glyphwing starting",
		"config", *configPath,
		"metrics_addr", cfg.Server.MetricsAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Observability ─────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "glyphwing"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	metrics := observe.DefaultMetrics()
	if cfg.Server.MetricsAddr != "" {
		go serveMetrics(cfg.Server.MetricsAddr)
	}

	// ── Streaming-source registry ─────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinSources(reg, logger)

	sources, err := config.BuildSources(reg, cfg, config.SourceNameToType)
	if err != nil {
		slog.Error("failed to build streaming sources", "err", err)
		return 1
	}
	printStartupSummary(cfg, sources)

	// ── Discord gateway session ───────────────────────────────────────────────
	sess, err := discordgo.New("Bot " + cfg.Discord.BotToken)
	if err != nil {
		slog.Error("failed to create discord session", "err", err)
		return 1
	}
	sess.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates | discordgo.IntentGuildMessages

	shard := discordshard.New(sess)
	registry := voice.NewRegistry(logger)

	sess.AddHandler(commandHandler(registry, shard, sources, cfg, logger, metrics))

	if err := sess.Open(); err != nil {
		slog.Error("failed to open discord gateway session", "err", err)
		return 1
	}
	defer sess.Close()

	slog.Info("voice engine ready — press Ctrl+C to shut down")

	<-ctx.Done()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")
	shutdownDone := make(chan struct{})
	go func() {
		registry.Shutdown()
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
	case <-time.After(15 * time.Second):
		slog.Warn("shutdown timed out waiting for engines to stop")
	}
	slog.Info("goodbye")
	return 0
}

// ── Streaming-source wiring ───────────────────────────────────────────────────

// registerBuiltinSources registers the streamsource factories this binary
// ships with under the names config.SourceEntry.Name may reference.
func registerBuiltinSources(reg *config.Registry, logger *slog.Logger) {
	reg.RegisterSource("youtube", func(config.SourceEntry) (producer.Source, error) {
		return streamsource.NewYouTube(logger), nil
	})
	reg.RegisterSource("soundcloud", func(config.SourceEntry) (producer.Source, error) {
		return streamsource.NewSoundCloud(logger), nil
	})
}

// ── Command handling ──────────────────────────────────────────────────────────

// commandHandler returns a minimal text-command handler exercising Join,
// play, skip, and leave against the engine registry. Slash-command
// registration is out of this binary's scope; the prefix commands below
// are enough to drive the engine end-to-end.
func commandHandler(registry *voice.EngineRegistry, shard *discordshard.Shard, sources map[producer.SongType]producer.Source, cfg *config.Config, logger *slog.Logger, metrics *observe.Metrics) func(*discordgo.Session, *discordgo.MessageCreate) {
	return func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author.Bot {
			return
		}
		fields := strings.Fields(m.Content)
		if len(fields) == 0 || fields[0] != "!voice" || len(fields) < 2 {
			return
		}

		switch fields[1] {
		case "join":
			channelID, err := resolveVoiceChannel(s, m)
			if err != nil {
				_, _ = s.ChannelMessageSend(m.ChannelID, err.Error())
				return
			}
			engineCfg := voice.Config{
				GuildID:   m.GuildID,
				ChannelID: channelID,
				UserID:    s.State.User.ID,
				Shard:     shard,
				Sources:   sources,
				NewDecoder: codec.NewDecoder,
				Logger:     logger,
				MaxRetries: cfg.Voice.ReconnectMaxRetries,
				Backoff:    cfg.Voice.ReconnectBackoff,
				MaxBackoff: cfg.Voice.ReconnectMaxBackoff,
			}
			if err := registry.Join(context.Background(), engineCfg); err != nil {
				_, _ = s.ChannelMessageSend(m.ChannelID, "join failed: "+err.Error())
				return
			}
			metrics.ActiveSessions.Add(context.Background(), 1)
			_, _ = s.ChannelMessageSend(m.ChannelID, "joined voice channel")

		case "leave":
			registry.Leave(m.GuildID)
			metrics.ActiveSessions.Add(context.Background(), -1)
			_, _ = s.ChannelMessageSend(m.ChannelID, "left voice channel")

		case "play":
			engine, ok := registry.Engine(m.GuildID)
			if !ok {
				_, _ = s.ChannelMessageSend(m.ChannelID, "not connected — use !voice join first")
				return
			}
			if len(fields) < 3 {
				_, _ = s.ChannelMessageSend(m.ChannelID, "usage: !voice play <query>")
				return
			}
			query := strings.Join(fields[2:], " ")
			results := producer.Search(sources, config.SourceSearchOrder, query)
			if len(results) == 0 {
				_, _ = s.ChannelMessageSend(m.ChannelID, "no results found")
				return
			}
			song := results[0]
			song.AddedByID = m.Author.ID
			song.AddedByName = m.Author.Username
			engine.Producer().Enqueue(song)
			_, _ = s.ChannelMessageSend(m.ChannelID, "queued: "+song.Query)

		case "skip":
			if engine, ok := registry.Engine(m.GuildID); ok {
				engine.Producer().Skip()
			}

		case "stop":
			if engine, ok := registry.Engine(m.GuildID); ok {
				engine.Producer().Stop()
			}
		}
	}
}

// resolveVoiceChannel finds the voice channel the invoking member is
// currently connected to.
func resolveVoiceChannel(s *discordgo.Session, m *discordgo.MessageCreate) (string, error) {
	guild, err := s.State.Guild(m.GuildID)
	if err != nil {
		return "", fmt.Errorf("guild state unavailable: %w", err)
	}
	for _, vs := range guild.VoiceStates {
		if vs.UserID == m.Author.ID {
			return vs.ChannelID, nil
		}
	}
	return "", errors.New("join a voice channel first")
}

// ── Metrics endpoint ───────────────────────────────────────────────────────────

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("metrics server exited", "err", err)
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, sources map[producer.SongType]producer.Source) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        Glyphwing — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	fmt.Printf("║  Sources enabled : %-19d ║\n", len(sources))
	fmt.Printf("║  Reconnect budget: %-19d ║\n", cfg.Voice.ReconnectMaxRetries)
	if cfg.Server.MetricsAddr != "" {
		fmt.Printf("║  Metrics addr    : %-19s ║\n", cfg.Server.MetricsAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogLevelDebug:
		lvl = slog.LevelDebug
	case config.LogLevelWarn:
		lvl = slog.LevelWarn
	case config.LogLevelError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
