package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"SyncFM/cache"
	"SyncFM/config"
	"SyncFM/core/audio"
	"SyncFM/core/bus"
	"SyncFM/core/catalog"
	"SyncFM/core/tab"
	"SyncFM/logger"
	"SyncFM/model"
	"SyncFM/storage"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var tabCmd = &cobra.Command{
	Use:   "tab",
	Short: "Run an interactive tab",
	Long: `Runs one tab of the shared playback session. Start several of these
against the same hub (or Redis) to exercise ownership handoff, state
mirroring, command relay and credential propagation.`,
	RunE: runTab,
}

func init() {
	rootCmd.AddCommand(tabCmd)
}

func runTab(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogPath,
		MaxSize:    50,
		MaxBackups: 3,
		MaxAge:     7,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deviceID := uuid.NewString()

	b, err := buildBus(ctx, cfg, deviceID)
	if err != nil {
		return err
	}
	defer b.Close()

	store, resolver, err := buildStoreAndResolver(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	t := tab.New(tab.Options{
		Bus:       b,
		Store:     store,
		Resolver:  resolver,
		Refresher: catalog.NewClient(cfg.CatalogBaseURL),
		Engine:    audio.NewClockEngine(500 * time.Millisecond),
		OnForcedLogout: func() {
			fmt.Println("! account changed in another tab, please log in again")
		},
	})
	if err := t.Start(ctx); err != nil {
		return err
	}
	defer t.Close()

	t.SetForeground(true)

	fmt.Printf("tab %s ready, type 'help'\n", t.Device.DeviceID[:8])
	return repl(ctx, t)
}

// buildBus selects the broadcast transport from configuration.
func buildBus(ctx context.Context, cfg *config.Config, deviceID string) (bus.Bus, error) {
	switch cfg.Bus {
	case "ws":
		b, err := bus.DialHub(ctx, cfg.HubURL, deviceID)
		if err != nil {
			// BusUnavailable is not an error: fall back to single-tab mode.
			logger.Warn("relay hub unreachable, running single-tab", logger.ErrorField(err))
			return bus.Noop{}, nil
		}
		return b, nil
	case "redis":
		if err := cache.ConnectRedis(cfg); err != nil {
			logger.Warn("redis unreachable, running single-tab", logger.ErrorField(err))
			return bus.Noop{}, nil
		}
		return bus.NewRedisBus(cache.RedisClient, deviceID), nil
	case "none":
		return bus.Noop{}, nil
	default:
		return nil, fmt.Errorf("unknown bus %q", cfg.Bus)
	}
}

// buildStoreAndResolver picks Redis-backed collaborators when Redis is up
// and the file store otherwise.
func buildStoreAndResolver(cfg *config.Config) (storage.Store, *catalog.Resolver, error) {
	client := catalog.NewClient(cfg.CatalogBaseURL)

	if cache.RedisClient != nil {
		store := storage.NewRedis(cache.RedisClient)
		resolver := catalog.NewResolver(client, cache.NewTrackCache(cache.RedisClient))
		return store, resolver, nil
	}

	store, err := storage.NewFile(cfg.StorePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store file: %w", err)
	}
	return store, catalog.NewResolver(client, nil), nil
}

func repl(ctx context.Context, t *tab.Tab) error {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "help":
			fmt.Println("commands: play <id> | queue <id> | toggle | next | prev | seek <ms> |")
			fmt.Println("          shuffle on|off | repeat off|one|all | login <access> [refresh] [userId] |")
			fmt.Println("          logout | fg | bg | status | quit")

		case "play":
			if len(fields) < 2 {
				fmt.Println("usage: play <trackId>")
				continue
			}
			if err := t.PlayTrackByID(ctx, fields[1], false); err != nil {
				fmt.Println("error:", err)
			}

		case "queue":
			if len(fields) < 2 {
				fmt.Println("usage: queue <trackId>")
				continue
			}
			t.AddToQueue(ctx, fields[1])

		case "toggle":
			t.TogglePlay(ctx)
		case "next":
			t.Next(ctx)
		case "prev":
			t.Previous(ctx)

		case "seek":
			if len(fields) < 2 {
				fmt.Println("usage: seek <ms>")
				continue
			}
			ms, err := strconv.ParseInt(fields[1], 10, 64)
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			t.Seek(ctx, ms)

		case "shuffle":
			t.SetShuffle(len(fields) > 1 && fields[1] == "on")

		case "repeat":
			if len(fields) < 2 {
				fmt.Println("usage: repeat off|one|all")
				continue
			}
			t.SetRepeatMode(model.RepeatMode(fields[1]))

		case "login":
			if len(fields) < 2 {
				fmt.Println("usage: login <accessToken> [refreshToken] [userId]")
				continue
			}
			cred := model.Credential{AccessToken: fields[1]}
			userID := ""
			if len(fields) > 2 {
				cred.RefreshToken = fields[2]
			}
			if len(fields) > 3 {
				userID = fields[3]
			}
			if err := t.Login(ctx, cred, userID); err != nil {
				fmt.Println("error:", err)
			}

		case "logout":
			t.Logout(ctx)

		case "fg":
			t.SetForeground(true)
		case "bg":
			t.SetForeground(false)

		case "status":
			printStatus(t)

		case "quit", "exit":
			return nil

		default:
			fmt.Println("unknown command, type 'help'")
		}
	}
	return scanner.Err()
}

func printStatus(t *tab.Tab) {
	snap := t.Snapshot()
	fmt.Printf("state=%s status=%s playing=%v\n", t.Arbiter.State(), t.Status(), snap.IsPlaying)
	if snap.CurrentTrackID != "" {
		fmt.Printf("now: %s - %s (%d/%d ms)\n", snap.Artist, snap.Title, snap.PositionMs, snap.DurationMs)
	}
	fmt.Printf("queue (%d, shuffle=%v repeat=%s):\n", len(snap.Queue), snap.Shuffle, snap.Repeat)
	for i, track := range snap.Queue {
		marker := "  "
		if track.ID == snap.CurrentTrackID {
			marker = "> "
		}
		fmt.Printf("%s%d. %s - %s\n", marker, i+1, track.Artist, track.Title)
	}
	if snap.OwnerDeviceID != "" {
		fmt.Printf("owner: %s (last seen %s)\n", snap.OwnerDeviceID[:8], snap.OwnerLastSeenAt.Format("15:04:05"))
	}
}
