package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointments/internal/app"
	"github.com/hackgods/clinic-appointments/internal/config"
	"github.com/hackgods/clinic-appointments/internal/interval"
	"github.com/hackgods/clinic-appointments/internal/logging"
	"github.com/hackgods/clinic-appointments/internal/users"
)

// SeededUser is one line of the token file read by the simulator.
type SeededUser struct {
	ID    string     `json:"id"`
	Email string     `json:"email"`
	Role  users.Role `json:"role"`
	Token string     `json:"token"`
}

type TokenFile struct {
	Doctors  []SeededUser `json:"doctors"`
	Patients []SeededUser `json:"patients"`
}

// daily availability blocks
var dayBlocks = [][2]interval.TimeOfDay{
	{interval.Clock(9, 0, 0), interval.Clock(12, 0, 0)},
	{interval.Clock(13, 0, 0), interval.Clock(17, 0, 0)},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}
	if cfg.StoreDriver != config.StorePostgres {
		fmt.Fprintln(os.Stderr, "seed needs STORE_DRIVER=postgres, an in-memory store would vanish on exit")
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	logger = logger.Named("seed")

	doctors := getInt("SEED_DOCTORS", 20)
	patients := getInt("SEED_PATIENTS", 500)
	days := getInt("SEED_DAYS", 5)
	out := getEnv("SEED_TOKENS_FILE", "seed_tokens.json")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	boot, err := app.New(ctx, cfg, logger, nil)
	if err != nil {
		logger.Fatal("bootstrap failed", zap.Error(err))
	}
	defer func() {
		if err := boot.Shutdown(context.Background()); err != nil {
			logger.Error("bootstrap shutdown", zap.Error(err))
		}
	}()

	// run tag keeps emails unique across repeated seeds
	run := strconv.FormatInt(time.Now().Unix(), 36)

	var file TokenFile

	logger.Info("seeding doctors", zap.Int("count", doctors), zap.Int("days", days))
	today := boot.Service.Today()
	for i := 0; i < doctors; i++ {
		addr := gofakeit.Address().Address
		u, err := boot.Users.Create(ctx, users.User{
			Name:          "Dr. " + gofakeit.Name(),
			Email:         fmt.Sprintf("doctor%d.%s@%s", i, run, "clinic.test"),
			Role:          users.RoleDoctor,
			ClinicAddress: &addr,
		})
		if err != nil {
			logger.Fatal("create doctor", zap.Error(err))
		}

		// start tomorrow so the sweep leaves every window open
		for d := 1; d <= days; d++ {
			date := today.AddDate(0, 0, d)
			for _, block := range dayBlocks {
				if _, err := boot.Service.AddAvailability(ctx, u.ID, date, block[0], block[1]); err != nil {
					logger.Fatal("add availability",
						zap.String("doctor", u.ID.String()),
						zap.String("date", interval.FormatDate(date)),
						zap.Error(err),
					)
				}
			}
		}

		file.Doctors = append(file.Doctors, issue(boot, logger, u))
	}

	logger.Info("seeding patients", zap.Int("count", patients))
	for i := 0; i < patients; i++ {
		u, err := boot.Users.Create(ctx, users.User{
			Name:  gofakeit.Name(),
			Email: fmt.Sprintf("%s.%d.%s@patients.test", strings.ToLower(gofakeit.FirstName()), i, run),
			Role:  users.RolePatient,
		})
		if err != nil {
			logger.Fatal("create patient", zap.Error(err))
		}
		file.Patients = append(file.Patients, issue(boot, logger, u))

		if (i+1)%100 == 0 {
			logger.Info("patients seeded", zap.Int("done", i+1), zap.Int("total", patients))
		}
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		logger.Fatal("encode token file", zap.Error(err))
	}
	if err := os.WriteFile(out, data, 0o600); err != nil {
		logger.Fatal("write token file", zap.Error(err))
	}

	logger.Info("seed complete",
		zap.Int("doctors", len(file.Doctors)),
		zap.Int("patients", len(file.Patients)),
		zap.String("tokens_file", out),
	)
}

func issue(boot *app.Bootstrap, logger *zap.Logger, u *users.User) SeededUser {
	token, err := boot.Tokens.Issue(*u)
	if err != nil {
		logger.Fatal("issue token", zap.String("email", u.Email), zap.Error(err))
	}
	return SeededUser{ID: u.ID.String(), Email: u.Email, Role: u.Role, Token: token}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}
