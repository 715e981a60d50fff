package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/turnos-scheduling/internal/appointment"
	"github.com/hackgods/turnos-scheduling/internal/auth"
	"github.com/hackgods/turnos-scheduling/internal/config"
	"github.com/hackgods/turnos-scheduling/internal/db"
	"github.com/hackgods/turnos-scheduling/internal/logging"
)

const (
	professionalCount = 100
	patientCount      = 9000
	blockDays         = 7
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		stderrLog := zerolog.New(os.Stderr)
		stderrLog.Fatal().Err(err).Msg("config load error")
	}

	logger, err := logging.New("seed", cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		stderrLog := zerolog.New(os.Stderr)
		stderrLog.Fatal().Err(err).Msg("logger setup error")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	applied, err := db.Migrate(ctx, pool)
	if err != nil {
		logger.Fatal().Err(err).Msg("migrate")
	}
	logger.Info().Int("applied", applied).Msg("migrations up to date")

	faker := gofakeit.New(uint64(time.Now().UnixNano()))
	s := seeder{pool: pool, faker: faker, log: logger}

	professionals, err := s.seedProfessionals(ctx, professionalCount)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed professionals")
	}
	if err := s.seedPatients(ctx, patientCount); err != nil {
		logger.Fatal().Err(err).Msg("seed patients")
	}
	if err := s.seedLunchBlocks(ctx, professionals, blockDays); err != nil {
		logger.Fatal().Err(err).Msg("seed schedule blocks")
	}

	logger.Info().Msg("seed complete")

	if cfg.JWTSecret != "" {
		tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL, nil)
		if err != nil {
			logger.Fatal().Err(err).Msg("token service")
		}
		token, err := tokens.Issue("seed-admin", "admin")
		if err != nil {
			logger.Fatal().Err(err).Msg("issue token")
		}
		fmt.Printf("dev bearer token (valid %s):\n%s\n", cfg.JWTTTL, token)
	}
}

type seeder struct {
	pool  *pgxpool.Pool
	faker *gofakeit.Faker
	log   zerolog.Logger
}

var specialties = []string{
	"Dermatología",
	"Cardiología",
	"Clínica médica",
	"Traumatología",
	"Endocrinología",
	"Neurología",
	"Pediatría",
	"Psiquiatría",
	"Oftalmología",
	"Otorrinolaringología",
}

var slotChoices = []int{15, 20, 30, 45}

var channels = []appointment.ContactChannel{
	appointment.ChannelWhatsApp,
	appointment.ChannelTelegram,
	appointment.ChannelSMS,
}

func (s seeder) seedProfessionals(ctx context.Context, count int) ([]uuid.UUID, error) {
	s.log.Info().Int("count", count).Msg("seeding professionals")

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		_, err := tx.Exec(ctx, `
			INSERT INTO professionals (id, name, specialty, slot_minutes, active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, TRUE, now(), now())
		`, id,
			"Dr. "+s.faker.Name(),
			specialties[s.faker.Number(0, len(specialties)-1)],
			slotChoices[s.faker.Number(0, len(slotChoices)-1)],
		)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.log.Info().Msg("professionals seeded")
	return ids, nil
}

// seedPatients streams rows with COPY in batches.
func (s seeder) seedPatients(ctx context.Context, count int) error {
	s.log.Info().Int("count", count).Msg("seeding patients")

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		rows := make([][]any, 0, end-offset)
		for i := offset; i < end; i++ {
			rows = append(rows, []any{
				uuid.New(),
				s.faker.Name(),
				s.faker.Phone(),
				string(channels[s.faker.Number(0, len(channels)-1)]),
				true,
			})
		}

		_, err := s.pool.CopyFrom(ctx,
			pgx.Identifier{"patients"},
			[]string{"id", "name", "phone", "contact_channel", "active"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return err
		}

		s.log.Debug().Int("done", end).Int("total", count).Msg("patients seeded")
	}

	s.log.Info().Msg("patients seeded")
	return nil
}

// seedLunchBlocks blocks 13:00-14:00 UTC for every professional over the
// next days.
func (s seeder) seedLunchBlocks(ctx context.Context, professionals []uuid.UUID, days int) error {
	s.log.Info().Int("professionals", len(professionals)).Int("days", days).Msg("seeding lunch blocks")

	today := time.Now().UTC().Truncate(24 * time.Hour)

	batch := &pgx.Batch{}
	for _, id := range professionals {
		for d := 1; d <= days; d++ {
			start := today.AddDate(0, 0, d).Add(13 * time.Hour)
			batch.Queue(`
				INSERT INTO schedule_blocks (id, professional_id, start_time, end_time, reason)
				VALUES ($1, $2, $3, $4, 'almuerzo')
			`, uuid.New(), id, start, start.Add(time.Hour))
		}
	}

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}

	s.log.Info().Msg("lunch blocks seeded")
	return nil
}
