// Команда loadtest гоняет конкурентные покупки одного товара через HTTP API
// и проверяет, что остаток не ушёл в минус.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	scenarioMethod = "scenario"
	purchaseMethod = "purchase"
	buyerPassword  = "load-test-password"
)

type loadMode string

const (
	modeContention loadMode = "contention"
	modeUnlimited  loadMode = "unlimited"
)

type config struct {
	addr        string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	buyers      int
	timeout     time.Duration
	mode        loadMode
	stock       int
	quantity    int
	price       string
	outputPath  string
}

// fixture — вендор, товар и покупатели, созданные под конкретный прогон.
type fixture struct {
	productID    int64
	initialStock *int
	buyerIDs     []int64
}

func parseConfig(args []string, output io.Writer) (config, error) {
	var cfg config
	var modeValue string

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&cfg.addr, "addr", "http://localhost:8080", "marketplace HTTP API base URL")
	fs.IntVar(&cfg.total, "total", 400, "total purchase attempts in count mode; in duration mode only used when explicitly set")
	fs.DurationVar(&cfg.duration, "duration", 0, "optional time-based run duration (e.g. 1m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	fs.IntVar(&cfg.buyers, "buyers", 10, "number of registered buyers sharing the load")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-request timeout")
	fs.StringVar(&modeValue, "mode", string(modeContention), "load mode: contention | unlimited")
	fs.IntVar(&cfg.stock, "stock", 100, "initial stock of the product in contention mode")
	fs.IntVar(&cfg.quantity, "quantity", 1, "units per purchase")
	fs.StringVar(&cfg.price, "price", "9.99", "unit price of the product")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode

	switch {
	case strings.TrimSpace(cfg.addr) == "":
		return cfg, errors.New("addr is required")
	case cfg.duration < 0:
		return cfg, errors.New("duration must be >= 0")
	case cfg.duration == 0 && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when duration is not set")
	case cfg.duration > 0 && cfg.totalSet && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	case cfg.concurrency <= 0:
		return cfg, errors.New("concurrency must be > 0")
	case cfg.buyers <= 0:
		return cfg, errors.New("buyers must be > 0")
	case cfg.timeout <= 0:
		return cfg, errors.New("timeout must be > 0")
	case cfg.quantity <= 0:
		return cfg, errors.New("quantity must be > 0")
	case cfg.mode == modeContention && cfg.stock < 0:
		return cfg, errors.New("stock must be >= 0")
	case strings.TrimSpace(cfg.price) == "":
		return cfg, errors.New("price is required")
	}

	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch loadMode(strings.TrimSpace(value)) {
	case modeContention:
		return modeContention, nil
	case modeUnlimited:
		return modeUnlimited, nil
	default:
		return "", fmt.Errorf("unsupported mode %q", value)
	}
}

func main() {
	cfg, err := parseConfig(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(2)
	}

	httpClient := &http.Client{
		Timeout: cfg.timeout,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.concurrency,
			MaxIdleConnsPerHost: cfg.concurrency,
		},
	}
	client := newAPIClient(cfg.addr, httpClient)

	result, err := run(context.Background(), client, cfg)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load test failed: %v\n", err)
		os.Exit(1)
	}

	printReport(os.Stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if result.FailedScenarios > 0 || result.Stock.Oversold {
		os.Exit(1)
	}
}

// run готовит данные, прогоняет нагрузку и сверяет итоговый остаток.
func run(ctx context.Context, client *apiClient, cfg config) (report, error) {
	runID := uuid.NewString()[:8]
	fx, err := setupFixture(ctx, client, cfg, runID)
	if err != nil {
		return report{}, fmt.Errorf("setup: %w", err)
	}

	startedAt := time.Now()
	col := newCollector()
	jobs := make(chan int, cfg.concurrency*2)

	var wg sync.WaitGroup
	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				buyer := fx.buyerIDs[id%len(fx.buyerIDs)]
				runScenario(ctx, client, cfg, buyer, fx.productID, col)
			}
		}()
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	result := col.buildReport(startedAt, time.Since(startedAt))

	final, err := client.productStock(ctx, fx.productID)
	if err != nil {
		return result, fmt.Errorf("read final stock: %w", err)
	}
	result.Stock = checkStock(fx.initialStock, final, col.statusCount(purchaseMethod, http.StatusCreated), cfg.quantity)
	return result, nil
}

func setupFixture(ctx context.Context, client *apiClient, cfg config, runID string) (fixture, error) {
	vendorID, err := client.createVendor(ctx, "Load Test Vendor "+runID, "LT/"+runID)
	if err != nil {
		return fixture{}, fmt.Errorf("create vendor: %w", err)
	}

	var stock *int
	if cfg.mode == modeContention {
		s := cfg.stock
		stock = &s
	}
	productID, err := client.createProduct(ctx, vendorID, stock, cfg.price)
	if err != nil {
		return fixture{}, fmt.Errorf("create product: %w", err)
	}

	fx := fixture{productID: productID, initialStock: stock, buyerIDs: make([]int64, 0, cfg.buyers)}
	for i := 0; i < cfg.buyers; i++ {
		username := fmt.Sprintf("lt_%s_%d", runID, i)
		userID, err := client.registerUser(ctx, username, username+"@loadtest.local", buyerPassword)
		if err != nil {
			return fixture{}, fmt.Errorf("register buyer %d: %w", i, err)
		}
		fx.buyerIDs = append(fx.buyerIDs, userID)
	}
	return fx, nil
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}

		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

// runScenario делает одну покупку. 409 (склад пуст) и 503 (конфликт версий
// не разрешился) считаются штатным исходом под конкуренцией.
func runScenario(ctx context.Context, client *apiClient, cfg config, userID, productID int64, col *collector) {
	start := time.Now()
	status, err := client.purchase(ctx, userID, productID, cfg.quantity)
	latency := time.Since(start)

	ok := err == nil && expectedStatus(cfg.mode, status)
	col.record(purchaseMethod, latency, status, err == nil && status == http.StatusCreated)
	col.record(scenarioMethod, latency, status, ok)
}

func expectedStatus(mode loadMode, status int) bool {
	switch status {
	case http.StatusCreated, http.StatusServiceUnavailable:
		return true
	case http.StatusConflict:
		return mode == modeContention
	default:
		return false
	}
}

// checkStock сверяет остаток с числом успешных покупок.
func checkStock(initial, final *int, purchased int64, quantity int) stockCheck {
	check := stockCheck{Initial: initial, Final: final, Purchased: purchased}
	if initial == nil {
		check.Oversold = final != nil
		return check
	}
	if final == nil {
		check.Oversold = true
		return check
	}
	check.Oversold = *final < 0 || int64(*initial-*final) != purchased*int64(quantity)
	return check
}
