// Command intaketester replays messages through the intake pipeline against a
// local SQLite database and prints the replies instead of sending them.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/finchat/backend/internal/config"
	"github.com/zhouzirui/finchat/backend/internal/logger"
	model "github.com/zhouzirui/finchat/backend/internal/model/intake"
	"github.com/zhouzirui/finchat/backend/internal/model/ledger"
	"github.com/zhouzirui/finchat/backend/internal/phone"
	"github.com/zhouzirui/finchat/backend/internal/service/extraction"
	"github.com/zhouzirui/finchat/backend/internal/service/intake"
	"github.com/zhouzirui/finchat/backend/internal/service/intent"
	ledgersvc "github.com/zhouzirui/finchat/backend/internal/service/ledger"
	"github.com/zhouzirui/finchat/backend/internal/service/llm"
	"github.com/zhouzirui/finchat/backend/internal/service/session"
	"github.com/zhouzirui/finchat/backend/internal/service/speech"
	"github.com/zhouzirui/finchat/backend/internal/storage/sqlite"
)

func main() {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	dbPath := flag.String("db", cfg.Storage.Path, "SQLite database path")
	from := flag.String("phone", "5511999990000", "sender phone number")
	text := flag.String("text", "", "message to replay; reads one message per stdin line when empty")
	audioPath := flag.String("audio", "", "voice note to transcribe and replay")
	seed := flag.Bool("seed", false, "create a demo user, categories and card for -phone when missing")
	verbose := flag.Bool("v", false, "debug logging")
	timeout := flag.Duration("timeout", 60*time.Second, "per-message timeout")
	flag.Parse()

	level := "warn"
	if *verbose {
		level = "debug"
	}
	log := logger.Configure(level, "console")
	if envErr != nil {
		log.Debug().Err(envErr).Msg("no .env file")
	}
	ctx := logger.WithContext(context.Background(), log)

	store, err := sqlite.Open(*dbPath, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	if *seed {
		if err := seedDemo(ctx, store, *from); err != nil {
			log.Fatal().Err(err).Msg("failed to seed demo data")
		}
	}

	completer, err := llm.New(ctx, cfg.AI)
	if err != nil {
		log.Warn().Err(err).Msg("language model unavailable, using heuristics only")
		completer = nil
	}

	pipeline, err := intake.NewPipeline(intake.Deps{
		Sessions:     session.NewStore(session.Config{PendingTTL: cfg.Intake.PendingTTL}),
		Directory:    store,
		Classifier:   intent.NewService(completer, intent.Config{Timeout: cfg.AI.Timeout}),
		Extractor:    extraction.NewService(completer, extraction.Config{Timeout: cfg.AI.Timeout}),
		Materializer: ledgersvc.NewMaterializer(store),
	}, intake.Config{DefaultLocale: model.ParseLocale(cfg.Intake.DefaultLocale)})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build pipeline")
	}

	r := &replayer{pipeline: pipeline, from: *from, timeout: *timeout, log: log}

	switch {
	case *audioPath != "":
		transcript, err := transcribeFile(ctx, cfg.Speech, *audioPath, *timeout)
		if err != nil {
			log.Fatal().Err(err).Msg("transcription failed")
		}
		r.replay(ctx, transcript, true)
	case *text != "":
		r.replay(ctx, *text, false)
	default:
		fmt.Println("type messages, one per line (Ctrl-D to quit)")
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				r.replay(ctx, line, false)
			}
		}
	}
}

type replayer struct {
	pipeline *intake.Pipeline
	from     string
	timeout  time.Duration
	log      zerolog.Logger
	seq      int
}

func (r *replayer) replay(ctx context.Context, text string, transcribed bool) {
	r.seq++
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.pipeline.Handle(ctx, intake.Input{
		From:        r.from,
		MessageID:   fmt.Sprintf("replay-%d-%d", time.Now().UnixNano(), r.seq),
		Text:        text,
		Transcribed: transcribed,
	})
	if err != nil {
		r.log.Error().Err(err).Msg("replay failed")
		return
	}

	fmt.Printf("[%s → %s]\n", res.Intent.Kind, res.Outcome)
	for _, reply := range res.Replies {
		fmt.Println(reply)
		fmt.Println()
	}
	for _, rec := range res.Records {
		fmt.Printf("  saved %s %s %s on %s\n", rec.ID, rec.Amount.StringFixed(2), rec.Description, rec.Date.Format("2006-01-02"))
	}
}

func transcribeFile(ctx context.Context, cfg config.SpeechConfig, path string, timeout time.Duration) (string, error) {
	transcriber, err := speech.New(ctx, cfg)
	if err != nil {
		return "", err
	}
	if transcriber == nil {
		return "", errors.New("speech is not configured: set SPEECH_* or GEMINI_API_KEY")
	}

	audio, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read audio: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return transcriber.Transcribe(ctx, audio, mimeFromExt(path))
}

func mimeFromExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".pcm":
		return "audio/pcm"
	default:
		return "audio/ogg"
	}
}

func seedDemo(ctx context.Context, store *sqlite.Store, from string) error {
	key := phone.Canonicalize(from)
	if _, err := store.FindUserByPhone(ctx, key); err == nil {
		return nil
	} else if !errors.Is(err, ledger.ErrNotFound) {
		return err
	}

	user := &ledger.User{Phone: key, Username: "demo", Name: "Demo User", Plan: ledger.PlanPro}
	if err := store.SaveUser(ctx, user); err != nil {
		return err
	}
	friend := &ledger.User{Username: "bruno", Name: "Bruno Lima", Plan: ledger.PlanFree}
	if err := store.SaveUser(ctx, friend); err != nil {
		return err
	}
	if err := store.AddContact(ctx, user.ID, friend.ID); err != nil {
		return err
	}

	categories := []ledger.Category{
		{Name: "Alimentação", Kind: ledger.Expense},
		{Name: "Transporte", Kind: ledger.Expense},
		{Name: "Mercado", Kind: ledger.Expense},
		{Name: "Lazer", Kind: ledger.Expense},
		{Name: "Salário", Kind: ledger.Income},
		{Name: "Freelance", Kind: ledger.Income},
	}
	for i := range categories {
		categories[i].UserID = user.ID
		if err := store.SaveCategory(ctx, &categories[i]); err != nil {
			return err
		}
	}

	card := &ledger.Card{UserID: user.ID, Name: "Nubank", Brand: "Mastercard"}
	if err := store.SaveCard(ctx, card); err != nil {
		return err
	}

	fmt.Printf("seeded demo user %s for phone %s\n", user.ID, key)
	return nil
}
