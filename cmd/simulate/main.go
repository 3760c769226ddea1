package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointments/internal/logging"
)

type SimConfig struct {
	APIBaseURL  string
	TokensFile  string
	Duration    time.Duration
	Workers     int
	RaceWidth   int // concurrent patients aiming at the same slot
	Days        int
	CancelRatio float64
	ReadRatio   float64
}

type seededUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Token string `json:"token"`
}

type tokenFile struct {
	Doctors  []seededUser `json:"doctors"`
	Patients []seededUser `json:"patients"`
}

type ownedBooking struct {
	id    uuid.UUID
	token string
}

type DataPool struct {
	Doctors  []seededUser
	Patients []seededUser
	mu       sync.Mutex
	bookings []ownedBooking
}

func (dp *DataPool) AddBooking(b ownedBooking) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.bookings = append(dp.bookings, b)
}

// TakeBooking removes and returns a random booking.
func (dp *DataPool) TakeBooking(rng *rand.Rand) (ownedBooking, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.bookings) == 0 {
		return ownedBooking{}, false
	}
	idx := rng.Intn(len(dp.bookings))
	b := dp.bookings[idx]
	dp.bookings[idx] = dp.bookings[len(dp.bookings)-1]
	dp.bookings = dp.bookings[:len(dp.bookings)-1]
	return b, true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)

	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]

	return avg, min, max, p50, p95
}

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Booking   OperationMetrics
	Cancel    OperationMetrics
	ReadSlots OperationMetrics
	ListMine  OperationMetrics

	Races          int64
	RacesNoWinner  int64
	RacesManyWins  int64
	EmptySlotLists int64
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	logger  *zap.Logger
	metrics Metrics
}

type slotResponse struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type slotsResponse struct {
	Slots []slotResponse `json:"slots"`
}

type bookingCreated struct {
	Booking struct {
		ID uuid.UUID `json:"id"`
	} `json:"booking"`
}

type errorResponse struct {
	MessageKey string `json:"message_key"`
}

func main() {
	logger, err := logging.New(getEnv("LOG_LEVEL", "info"), "prod")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	logger = logger.Named("simulate")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	logger.Info("simulator starting",
		zap.Duration("duration", cfg.Duration),
		zap.Int("workers", cfg.Workers),
		zap.Int("race_width", cfg.RaceWidth),
		zap.Float64("cancel_ratio", cfg.CancelRatio),
		zap.Float64("read_ratio", cfg.ReadRatio),
	)

	dataPool, err := loadDataPool(cfg.TokensFile)
	if err != nil {
		logger.Fatal("load data pool", zap.Error(err))
	}
	logger.Info("loaded tokens", zap.Int("doctors", len(dataPool.Doctors)), zap.Int("patients", len(dataPool.Patients)))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		logger: logger,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:  strings.TrimRight(getEnv("SIM_API_BASE_URL", "http://localhost:8080"), "/"),
		TokensFile:  getEnv("SIM_TOKENS_FILE", "seed_tokens.json"),
		Duration:    getDuration("SIM_DURATION", 30*time.Second),
		Workers:     getInt("SIM_WORKERS", 10),
		RaceWidth:   getInt("SIM_RACE_WIDTH", 4),
		Days:        getInt("SIM_DAYS", 5),
		CancelRatio: getFloat("SIM_CANCEL_RATIO", 0.1),
		ReadRatio:   getFloat("SIM_READ_RATIO", 0.3),
	}
	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.RaceWidth <= 0 {
		return fmt.Errorf("SIM_RACE_WIDTH must be > 0")
	}
	if cfg.Days <= 0 {
		return fmt.Errorf("SIM_DAYS must be > 0")
	}
	if cfg.CancelRatio+cfg.ReadRatio > 1 {
		return fmt.Errorf("SIM_CANCEL_RATIO + SIM_READ_RATIO must not exceed 1")
	}
	return nil
}

func loadDataPool(path string) (*DataPool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tokens file: %w", err)
	}

	var tf tokenFile
	if err := json.Unmarshal(raw, &tf); err != nil {
		return nil, fmt.Errorf("decode tokens file: %w", err)
	}

	if len(tf.Doctors) == 0 {
		return nil, fmt.Errorf("no doctors in %s", path)
	}
	if len(tf.Patients) == 0 {
		return nil, fmt.Errorf("no patients in %s", path)
	}

	return &DataPool{Doctors: tf.Doctors, Patients: tf.Patients}, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.CancelRatio:
				s.doCancel(ctx, rng)
			case r < s.config.CancelRatio+s.config.ReadRatio:
				if rng.Intn(2) == 0 {
					s.doReadSlots(ctx, rng)
				} else {
					s.doListMine(ctx, rng)
				}
			default:
				s.doRace(ctx, rng)
			}
		}
	}
}

func (s *Simulator) request(ctx context.Context, method, path, token string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	return s.client.Do(req)
}

func (s *Simulator) randomDate(rng *rand.Rand) string {
	return time.Now().AddDate(0, 0, 1+rng.Intn(s.config.Days)).Format("2006-01-02")
}

func (s *Simulator) fetchSlots(ctx context.Context, doctor seededUser, date, token string) ([]slotResponse, bool) {
	resp, err := s.request(ctx, http.MethodGet,
		fmt.Sprintf("/api/v1/doctors/%s/available-slots?date=%s", doctor.ID, date), token, nil)
	if err != nil {
		return nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, false
	}

	var out slotsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, false
	}
	return out.Slots, true
}

// doRace sends RaceWidth concurrent bookings for one free slot. At most one
// may succeed; the rest must come back as overlaps.
func (s *Simulator) doRace(ctx context.Context, rng *rand.Rand) {
	doctor := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]
	date := s.randomDate(rng)
	scout := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	slots, ok := s.fetchSlots(ctx, doctor, date, scout.Token)
	if !ok || len(slots) == 0 {
		atomic.AddInt64(&s.metrics.EmptySlotLists, 1)
		return
	}
	slot := slots[rng.Intn(len(slots))]

	racers := make([]seededUser, s.config.RaceWidth)
	for i := range racers {
		racers[i] = s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	}

	var (
		wg   sync.WaitGroup
		wins int64
	)
	for _, p := range racers {
		wg.Add(1)
		go func(p seededUser) {
			defer wg.Done()
			if s.doBooking(ctx, doctor, p, slot) {
				atomic.AddInt64(&wins, 1)
			}
		}(p)
	}
	wg.Wait()

	if ctx.Err() != nil {
		return
	}

	atomic.AddInt64(&s.metrics.Races, 1)
	switch {
	case wins == 0:
		atomic.AddInt64(&s.metrics.RacesNoWinner, 1)
	case wins > 1:
		atomic.AddInt64(&s.metrics.RacesManyWins, 1)
		s.logger.Error("double booking detected",
			zap.String("doctor", doctor.ID),
			zap.String("date", slot.Date),
			zap.String("start", slot.StartTime),
			zap.Int64("winners", wins),
		)
	}
}

func (s *Simulator) doBooking(ctx context.Context, doctor, patient seededUser, slot slotResponse) bool {
	start := time.Now()

	resp, err := s.request(ctx, http.MethodPost, "/api/v1/bookings", patient.Token, map[string]string{
		"doctor_id":  doctor.ID,
		"date":       slot.Date,
		"start_time": slot.StartTime,
		"end_time":   slot.EndTime,
	})
	latency := time.Since(start)

	success := false
	conflict := false

	if err == nil {
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusCreated:
			success = true
			var created bookingCreated
			if json.NewDecoder(resp.Body).Decode(&created) == nil && created.Booking.ID != uuid.Nil {
				s.pool.AddBooking(ownedBooking{id: created.Booking.ID, token: patient.Token})
			}
		case http.StatusBadRequest, http.StatusServiceUnavailable:
			var e errorResponse
			_ = json.NewDecoder(resp.Body).Decode(&e)
			conflict = e.MessageKey == "appointment.slot.overlap" || e.MessageKey == "appointment.busy"
		}
	}

	if ctx.Err() == nil {
		s.metrics.Booking.Record(latency, success, conflict)
	}
	return success
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.TakeBooking(rng)
	if !ok {
		return
	}

	start := time.Now()
	resp, err := s.request(ctx, http.MethodDelete, "/api/v1/bookings/"+b.id.String(), b.token, nil)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	if ctx.Err() == nil {
		s.metrics.Cancel.Record(latency, success, false)
	}
}

func (s *Simulator) doReadSlots(ctx context.Context, rng *rand.Rand) {
	doctor := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]
	patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	start := time.Now()
	_, ok := s.fetchSlots(ctx, doctor, s.randomDate(rng), patient.Token)
	latency := time.Since(start)

	if ctx.Err() == nil {
		s.metrics.ReadSlots.Record(latency, ok, false)
	}
}

func (s *Simulator) doListMine(ctx context.Context, rng *rand.Rand) {
	patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	start := time.Now()
	resp, err := s.request(ctx, http.MethodGet, "/api/v1/bookings/mine", patient.Token, nil)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	if ctx.Err() == nil {
		s.metrics.ListMine.Record(latency, success, false)
	}
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Race width: %d\n", s.config.RaceWidth)
	fmt.Println()

	races := atomic.LoadInt64(&s.metrics.Races)
	fmt.Printf("Races: %d\n", races)
	fmt.Printf("  Without winner: %d\n", atomic.LoadInt64(&s.metrics.RacesNoWinner))
	fmt.Printf("  Double bookings: %d\n", atomic.LoadInt64(&s.metrics.RacesManyWins))
	fmt.Printf("  Empty slot lists: %d\n", atomic.LoadInt64(&s.metrics.EmptySlotLists))
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Read slots", &s.metrics.ReadSlots)
	printOperationReport("List own bookings", &s.metrics.ListMine)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
