package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/auth"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	idempotencyHeader = "Idempotency-Key"
	envJWTSecret      = "STOREFRONT_JWT_SECRET"
	envJWTIssuer      = "STOREFRONT_JWT_ISSUER"
	defaultQty        = int32(1)
	tokenTTL          = time.Hour
	transportError    = "transport_error"
)

type loadMode string

const (
	modeCheckout               loadMode = "checkout"
	modeCheckoutInitiate       loadMode = "checkout-initiate"
	modeCheckoutInitiateCancel loadMode = "checkout-initiate-cancel"
)

type envLookup func(string) (string, bool)

type config struct {
	baseURL     string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	timeout     time.Duration
	mode        loadMode
	cancelRate  int
	provider    string
	productID   string
	customerTag string
	jwtSecret   string
	jwtIssuer   string
	outputPath  string
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type routeReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Statuses  map[string]int64 `json:"statuses"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt         time.Time              `json:"started_at"`
	DurationSeconds   float64                `json:"duration_seconds"`
	TotalScenarios    int64                  `json:"total_scenarios"`
	SuccessScenarios  int64                  `json:"success_scenarios"`
	FailedScenarios   int64                  `json:"failed_scenarios"`
	ErrorRate         float64                `json:"error_rate"`
	RPS               float64                `json:"rps"`
	ScenarioLatencyMs latencySummary         `json:"scenario_latency_ms"`
	Routes            map[string]routeReport `json:"routes"`
}

type routeStats struct {
	calls     int64
	success   int64
	failed    int64
	statuses  map[string]int64
	latencies []float64
}

type collector struct {
	mu     sync.Mutex
	routes map[string]*routeStats
}

func newCollector() *collector {
	return &collector{
		routes: make(map[string]*routeStats),
	}
}

// record учитывает вызов. status == 0 означает, что ответа не было вовсе.
func (c *collector) record(route string, latency time.Duration, status int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.routes[route]
	if !ok {
		stats = &routeStats{statuses: make(map[string]int64)}
		c.routes[route] = stats
	}

	stats.calls++
	if isSuccess(status) {
		stats.success++
	} else {
		stats.failed++
	}
	stats.statuses[statusLabel(status)]++
	stats.latencies = append(stats.latencies, float64(latency.Microseconds())/1000.0)
}

func (c *collector) snapshot(name string) (routeReport, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.routes[name]
	if !ok {
		return routeReport{}, false
	}
	return stats.report(), true
}

func (s *routeStats) report() routeReport {
	statuses := make(map[string]int64, len(s.statuses))
	for code, count := range s.statuses {
		statuses[code] = count
	}
	return routeReport{
		Calls:     s.calls,
		Success:   s.success,
		Failed:    s.failed,
		ErrorRate: ratio(s.failed, s.calls),
		Statuses:  statuses,
		LatencyMs: buildLatencySummary(s.latencies),
	}
}

func (c *collector) buildReport(startedAt time.Time, duration time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		Routes:          make(map[string]routeReport, len(c.routes)),
	}

	if scenario := c.routes["scenario"]; scenario != nil {
		result.TotalScenarios = scenario.calls
		result.SuccessScenarios = scenario.success
		result.FailedScenarios = scenario.failed
		result.ErrorRate = ratio(scenario.failed, scenario.calls)
		result.ScenarioLatencyMs = buildLatencySummary(scenario.latencies)
	}
	if duration > 0 {
		result.RPS = float64(result.TotalScenarios) / duration.Seconds()
	}

	for name, stats := range c.routes {
		result.Routes[name] = stats.report()
	}
	return result
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func statusLabel(status int) string {
	if status == 0 {
		return transportError
	}
	return strconv.Itoa(status)
}

func parseConfig(args []string, lookup envLookup) (config, error) {
	var cfg config
	var modeValue string

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.baseURL, "base-url", "http://localhost:8080", "storefront REST API base URL")
	fs.IntVar(&cfg.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	fs.DurationVar(&cfg.duration, "duration", 0, "optional time-based run duration (e.g. 10m, 15m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-request timeout")
	fs.StringVar(&modeValue, "mode", string(modeCheckout), "load mode: checkout | checkout-initiate | checkout-initiate-cancel")
	fs.IntVar(&cfg.cancelRate, "cancel-rate", 0, "cancel probability in percent for checkout-initiate mode (0..100)")
	fs.StringVar(&cfg.provider, "provider", string(domain.PaymentMethodCashOnDelivery), "payment method used for orders and initiation")
	fs.StringVar(&cfg.productID, "product", "bananas", "catalog product id to order")
	fs.StringVar(&cfg.customerTag, "customer-tag", "load", "customer id prefix")
	fs.StringVar(&cfg.jwtSecret, "jwt-secret", envValue(lookup, envJWTSecret), "HS256 secret used to mint customer tokens")
	fs.StringVar(&cfg.jwtIssuer, "jwt-issuer", envValue(lookup, envJWTIssuer), "optional token issuer")
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
	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")

	if cfg.baseURL == "" {
		return cfg, errors.New("base-url is required")
	}
	if cfg.duration < 0 {
		return cfg, errors.New("duration must be >= 0")
	}
	if cfg.duration == 0 && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when duration is not set")
	}
	if cfg.duration > 0 && cfg.totalSet && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	}
	if cfg.concurrency <= 0 {
		return cfg, errors.New("concurrency must be > 0")
	}
	if cfg.timeout <= 0 {
		return cfg, errors.New("timeout must be > 0")
	}
	if cfg.cancelRate < 0 || cfg.cancelRate > 100 {
		return cfg, errors.New("cancel-rate must be between 0 and 100")
	}
	if strings.TrimSpace(cfg.provider) == "" {
		return cfg, errors.New("provider is required")
	}
	if strings.TrimSpace(cfg.productID) == "" {
		return cfg, errors.New("product is required")
	}
	if strings.TrimSpace(cfg.customerTag) == "" {
		return cfg, errors.New("customer-tag is required")
	}
	if strings.TrimSpace(cfg.jwtSecret) == "" {
		return cfg, fmt.Errorf("jwt-secret (or %s) is required", envJWTSecret)
	}

	return cfg, nil
}

func envValue(lookup envLookup, key string) string {
	if lookup == nil {
		return ""
	}
	v, _ := lookup(key)
	return strings.TrimSpace(v)
}

func parseMode(value string) (loadMode, error) {
	switch loadMode(strings.TrimSpace(value)) {
	case modeCheckout:
		return modeCheckout, nil
	case modeCheckoutInitiate:
		return modeCheckoutInitiate, nil
	case modeCheckoutInitiateCancel:
		return modeCheckoutInitiateCancel, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	cfg, err := parseConfig(os.Args[1:], os.LookupEnv)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	var issuerOpts []auth.Option
	if cfg.jwtIssuer != "" {
		issuerOpts = append(issuerOpts, auth.WithIssuer(cfg.jwtIssuer))
	}
	issuer, err := auth.NewVerifier(cfg.jwtSecret, issuerOpts...)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid jwt settings: %v\n", err)
		os.Exit(1)
	}

	client := newAPIClient(cfg.baseURL, &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        cfg.concurrency,
			MaxIdleConnsPerHost: cfg.concurrency,
			IdleConnTimeout:     90 * time.Second,
		},
	})

	startedAt := time.Now()
	result := execute(context.Background(), cfg, client, issuer, startedAt)

	printReport(os.Stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

// tokenIssuer выпускает bearer-токен покупателя.
type tokenIssuer interface {
	Issue(identity domain.Identity, ttl time.Duration) (string, error)
}

func execute(ctx context.Context, cfg config, client storefrontClient, issuer tokenIssuer, startedAt time.Time) report {
	runID := uuid.NewString()[:8]
	col := newCollector()

	jobs := make(chan int, cfg.concurrency*2)
	var failures int64
	var wg sync.WaitGroup

	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				if runErr := runScenario(ctx, client, issuer, cfg, id, runID, col); runErr != nil {
					atomic.AddInt64(&failures, 1)
				}
			}
		}()
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	result := col.buildReport(startedAt, time.Since(startedAt))
	if result.FailedScenarios == 0 && failures > 0 {
		result.FailedScenarios = failures
		result.ErrorRate = ratio(result.FailedScenarios, result.TotalScenarios)
	}
	return result
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

// apiError — ответ API вне диапазона 2xx.
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Status, e.Body)
}

func statusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

type orderRequest struct {
	Items           []orderItem    `json:"items"`
	ShippingAddress domain.Address `json:"shippingAddress"`
	PaymentMethod   string         `json:"paymentMethod"`
}

type orderItem struct {
	ProductID string `json:"productId"`
	Qty       int32  `json:"qty"`
}

type orderReply struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// storefrontClient — вызовы REST API, которые нагружает сценарий.
type storefrontClient interface {
	CreateOrder(ctx context.Context, token, key string, req orderRequest) (orderReply, error)
	InitiatePayment(ctx context.Context, token, key, provider, orderID string) error
	CancelOrder(ctx context.Context, token, key, orderID, reason string) error
}

type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string, client *http.Client) *apiClient {
	return &apiClient{baseURL: baseURL, http: client}
}

func (c *apiClient) CreateOrder(ctx context.Context, token, key string, req orderRequest) (orderReply, error) {
	var reply orderReply
	err := c.post(ctx, "/api/orders", token, key, req, &reply)
	return reply, err
}

func (c *apiClient) InitiatePayment(ctx context.Context, token, key, provider, orderID string) error {
	return c.post(ctx, "/api/payments/"+provider+"/initiate", token, key, map[string]string{"orderId": orderID}, nil)
}

func (c *apiClient) CancelOrder(ctx context.Context, token, key, orderID, reason string) error {
	return c.post(ctx, "/api/orders/"+orderID+"/cancel", token, key, map[string]string{"reason": reason}, nil)
}

func (c *apiClient) post(ctx context.Context, path, token, key string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(idempotencyHeader, key)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &apiError{Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func loadAddress() domain.Address {
	return domain.Address{
		Street:     "1 Load Street",
		City:       "Bengaluru",
		Region:     "KA",
		PostalCode: "560001",
		Country:    "IN",
	}
}

func runScenario(
	ctx context.Context,
	client storefrontClient,
	issuer tokenIssuer,
	cfg config,
	index int,
	runID string,
	col *collector,
) error {
	scenarioStart := time.Now()
	scenarioStatus := http.StatusOK
	defer func() {
		col.record("scenario", time.Since(scenarioStart), scenarioStatus)
	}()

	customer := fmt.Sprintf("%s-%s-%d", cfg.customerTag, runID, index)
	token, err := issuer.Issue(domain.Identity{UserID: customer, Role: domain.RoleCustomer}, tokenTTL)
	if err != nil {
		scenarioStatus = 0
		return fmt.Errorf("issue token: %w", err)
	}

	req := orderRequest{
		Items:           []orderItem{{ProductID: cfg.productID, Qty: defaultQty}},
		ShippingAddress: loadAddress(),
		PaymentMethod:   cfg.provider,
	}

	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	order, err := client.CreateOrder(callCtx, token, fmt.Sprintf("lt-create-%s-%d", runID, index), req)
	cancel()
	col.record("create_order", time.Since(start), statusOf(err))
	if err != nil {
		scenarioStatus = statusOf(err)
		return err
	}
	if order.ID == "" {
		scenarioStatus = http.StatusInternalServerError
		return errors.New("create response returned empty order id")
	}

	if cfg.mode == modeCheckout {
		return nil
	}

	start = time.Now()
	callCtx, cancel = context.WithTimeout(ctx, cfg.timeout)
	err = client.InitiatePayment(callCtx, token, fmt.Sprintf("lt-initiate-%s-%d", runID, index), cfg.provider, order.ID)
	cancel()
	col.record("initiate_payment", time.Since(start), statusOf(err))
	if err != nil {
		scenarioStatus = statusOf(err)
		return err
	}

	if cfg.mode == modeCheckoutInitiateCancel || (cfg.mode == modeCheckoutInitiate && shouldCancelScenario(index, cfg.cancelRate)) {
		start = time.Now()
		callCtx, cancel = context.WithTimeout(ctx, cfg.timeout)
		err = client.CancelOrder(callCtx, token, fmt.Sprintf("lt-cancel-%s-%d", runID, index), order.ID, "load-cancel")
		cancel()
		col.record("cancel_order", time.Since(start), statusOf(err))
		if err != nil {
			scenarioStatus = statusOf(err)
			return err
		}
	}

	return nil
}

func shouldCancelScenario(index, cancelRate int) bool {
	if cancelRate <= 0 {
		return false
	}
	if cancelRate >= 100 {
		return true
	}
	return index%100 < cancelRate
}

func writeJSONReport(path string, result report) error {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	// #nosec G304 -- path is an explicit CLI output parameter for local load-test reports.
	file, err := os.Create(cleanPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printReport(w io.Writer, result report, cfg config) {
	_, _ = fmt.Fprintln(w, "Load test summary")
	_, _ = fmt.Fprintf(w, "mode=%s provider=%s run=%s total=%d success=%d failed=%d error_rate=%.4f\n",
		cfg.mode,
		cfg.provider,
		runTarget(cfg),
		result.TotalScenarios,
		result.SuccessScenarios,
		result.FailedScenarios,
		result.ErrorRate,
	)
	_, _ = fmt.Fprintf(w, "duration=%.2fs rps=%.2f\n", result.DurationSeconds, result.RPS)
	_, _ = fmt.Fprintf(w, "scenario latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		result.ScenarioLatencyMs.Min,
		result.ScenarioLatencyMs.Avg,
		result.ScenarioLatencyMs.P50,
		result.ScenarioLatencyMs.P95,
		result.ScenarioLatencyMs.P99,
		result.ScenarioLatencyMs.Max,
	)

	names := make([]string, 0, len(result.Routes))
	for name := range result.Routes {
		if name == "scenario" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		stats := result.Routes[name]
		_, _ = fmt.Fprintf(w,
			"%s: calls=%d success=%d failed=%d error_rate=%.4f p95=%.2fms\n",
			name,
			stats.Calls,
			stats.Success,
			stats.Failed,
			stats.ErrorRate,
			stats.LatencyMs.P95,
		)
	}
}

func runTarget(cfg config) string {
	if cfg.duration <= 0 {
		return fmt.Sprintf("count:%d", cfg.total)
	}
	if cfg.totalSet {
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	}
	return fmt.Sprintf("duration:%s", cfg.duration)
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, value := range sorted {
		sum += value
	}

	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}

	weight := rank - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}

func ratio(failed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
