package imgen

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/BaSui01/imageflow/internal/metrics"
	"github.com/BaSui01/imageflow/types"
)

// PriorityTable fixes, per capability, the order in which capable
// adapters are preferred.
type PriorityTable map[Capability][]string

// DefaultPriorities is the priority order used when none is configured.
func DefaultPriorities() PriorityTable {
	return PriorityTable{
		CapGeneration:   {"openai", "stability", "gemini"},
		CapDescription:  {"gemini", "openai"},
		CapTagging:      {"gemini", "openai"},
		CapLogo:         {"openai", "stability"},
		CapTransparency: {"stability"},
	}
}

// Orchestrator composes the registry, the result cache and the typed
// error policy into the single surface exposed to the tool layer. Its
// public methods never propagate a Go error for backend failures: they
// return result values with Success=false.
type Orchestrator struct {
	registry   *Registry
	cache      ResultCache
	priorities PriorityTable
	logger     *zap.Logger
	collector  *metrics.Collector
	tracer     trace.Tracer

	probeTimeout time.Duration
	flight       singleflight.Group
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithCache sets the result cache. Without one, every request goes to a
// backend.
func WithCache(cache ResultCache) OrchestratorOption {
	return func(o *Orchestrator) { o.cache = cache }
}

// WithPriorities overrides the per-capability adapter priority table.
func WithPriorities(table PriorityTable) OrchestratorOption {
	return func(o *Orchestrator) { o.priorities = table }
}

// WithLogger sets the zap logger.
func WithLogger(logger *zap.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithMetrics attaches a metrics collector.
func WithMetrics(collector *metrics.Collector) OrchestratorOption {
	return func(o *Orchestrator) { o.collector = collector }
}

// WithProbeTimeout bounds each availability probe.
func WithProbeTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.probeTimeout = d }
}

// NewOrchestrator creates an Orchestrator over the given registry.
func NewOrchestrator(registry *Registry, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		registry:     registry,
		priorities:   DefaultPriorities(),
		logger:       zap.NewNop(),
		tracer:       otel.Tracer("github.com/BaSui01/imageflow/imgen"),
		probeTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Registry exposes the adapter registry for reconfiguration.
func (o *Orchestrator) Registry() *Registry { return o.registry }

// AvailableAdapters probes every registered adapter concurrently and
// returns those that answered, sorted by name. A probe error or panic
// counts as unavailable, never propagates.
func (o *Orchestrator) AvailableAdapters(ctx context.Context) []Adapter {
	adapters := o.registry.List()
	available := make([]Adapter, len(adapters))

	g, probeCtx := errgroup.WithContext(ctx)
	for i, a := range adapters {
		g.Go(func() error {
			if o.probeAdapter(probeCtx, a) {
				available[i] = a
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]Adapter, 0, len(adapters))
	for _, a := range available {
		if a != nil {
			out = append(out, a)
		}
	}
	return out
}

// probeAdapter runs one availability probe under the probe timeout,
// converting panics to unavailable.
func (o *Orchestrator) probeAdapter(ctx context.Context, a Adapter) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Warn("availability probe panicked",
				zap.String("backend", a.Name()), zap.Any("panic", r))
			ok = false
		}
	}()
	probeCtx, cancel := context.WithTimeout(ctx, o.probeTimeout)
	defer cancel()
	return a.IsAvailable(probeCtx)
}

// SelectAdapter picks the adapter to serve a capability. A preferred
// name wins when that adapter is registered, capable and available;
// otherwise the capability's priority order decides, then first-capable,
// then nothing.
func (o *Orchestrator) SelectAdapter(ctx context.Context, capability Capability, preferred string) (Adapter, bool) {
	if preferred != "" {
		if a, ok := o.registry.Get(preferred); ok &&
			a.Capabilities().Has(capability) && o.probeAdapter(ctx, a) {
			return a, true
		}
		o.logger.Debug("preferred backend not usable, falling back to priority order",
			zap.String("preferred", preferred), zap.String("capability", string(capability)))
	}

	capable := make(map[string]Adapter)
	for _, a := range o.AvailableAdapters(ctx) {
		if a.Capabilities().Has(capability) {
			capable[a.Name()] = a
		}
	}
	if len(capable) == 0 {
		return nil, false
	}

	for _, name := range o.priorities[capability] {
		if a, ok := capable[name]; ok {
			return a, true
		}
	}

	// No priority match: first capable adapter by name.
	names := make([]string, 0, len(capable))
	for name := range capable {
		names = append(names, name)
	}
	sort.Strings(names)
	return capable[names[0]], true
}

// fallbackAdapter returns the first available adapter other than failed
// that supports the capability.
func (o *Orchestrator) fallbackAdapter(ctx context.Context, capability Capability, failed string) (Adapter, bool) {
	for _, a := range o.AvailableAdapters(ctx) {
		if a.Name() != failed && a.Capabilities().Has(capability) {
			return a, true
		}
	}
	return nil, false
}

// generationCapability routes transparent logo requests to the logo
// capability; everything else is plain generation.
func generationCapability(req *GenerationRequest) Capability {
	if req.Transparent && strings.EqualFold(req.Style, "logo") {
		return CapLogo
	}
	return CapGeneration
}

// GenerateImage serves one generation request: cache first, then the
// selected adapter, then exactly one fallback adapter. It never panics
// or returns a Go error; failures come back as a GenerationResult with
// Success=false.
func (o *Orchestrator) GenerateImage(ctx context.Context, req *GenerationRequest, preferred ...string) (result *GenerationResult) {
	ctx, span := o.tracer.Start(ctx, "imgen.GenerateImage")
	defer span.End()

	requestID := uuid.NewString()
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("generate panicked", zap.Any("panic", r), zap.String("request_id", requestID))
			result = failedGeneration(requestID,
				types.NewError(types.ErrOperationFailed, fmt.Sprintf("internal fault: %v", r)))
		}
	}()

	if err := ValidateRequest(req); err != nil {
		te := Classify(err, "", requestID)
		LogClassified(o.logger, te)
		return failedGeneration(requestID, te)
	}
	norm := NormalizeRequest(req)
	capability := generationCapability(norm)
	span.SetAttributes(
		attribute.String("request_id", requestID),
		attribute.String("capability", string(capability)),
	)

	if o.cache != nil {
		if cached, ok := o.cache.Get(norm); ok {
			o.recordCache("generate", true)
			hit := *cached
			hit.Cached = true
			hit.RequestID = requestID
			return &hit
		}
		o.recordCache("generate", false)
	}

	pref := firstOrEmpty(preferred)
	shared, _, _ := o.flight.Do(Fingerprint(norm), func() (any, error) {
		return o.generateUncached(ctx, norm, capability, pref, requestID), nil
	})
	res := *(shared.(*GenerationResult))
	res.RequestID = requestID
	return &res
}

// generateUncached runs selection, invocation and the one-shot fallback.
func (o *Orchestrator) generateUncached(ctx context.Context, req *GenerationRequest, capability Capability, preferred, requestID string) *GenerationResult {
	primary, ok := o.SelectAdapter(ctx, capability, preferred)
	if !ok {
		te := types.NewError(types.ErrFeatureNotAvailable,
			fmt.Sprintf("no available backend supports %s", capability)).
			WithRequestID(requestID)
		LogClassified(o.logger, te)
		return failedGeneration(requestID, te)
	}

	result, te := o.invokeGenerate(ctx, primary, req, requestID)
	if te == nil {
		return result
	}

	fallback, ok := o.fallbackAdapter(ctx, capability, primary.Name())
	if !ok {
		return failedGeneration(requestID, te)
	}
	if o.collector != nil {
		o.collector.RecordFallback(primary.Name(), fallback.Name())
	}
	o.logger.Info("falling back to alternate backend",
		zap.String("from", primary.Name()),
		zap.String("to", fallback.Name()),
		zap.String("request_id", requestID))

	result, te = o.invokeGenerate(ctx, fallback, req, requestID)
	if te == nil {
		return result
	}
	return failedGeneration(requestID, te)
}

// invokeGenerate calls one adapter and normalizes its outcome.
func (o *Orchestrator) invokeGenerate(ctx context.Context, a Adapter, req *GenerationRequest, requestID string) (*GenerationResult, *types.Error) {
	start := time.Now()
	result, err := a.Generate(ctx, req)
	if err != nil {
		te := Classify(err, a.Name(), requestID)
		LogClassified(o.logger, te)
		o.recordRequest(a.Name(), "generate", "error", start)
		return nil, te
	}
	if result == nil || !result.Success || len(result.Images) == 0 {
		te := types.NewError(types.ErrInvalidResponse,
			fmt.Sprintf("%s returned no images", a.Name())).
			WithBackend(a.Name()).WithRequestID(requestID)
		LogClassified(o.logger, te)
		o.recordRequest(a.Name(), "generate", "error", start)
		return nil, te
	}

	o.recordRequest(a.Name(), "generate", "success", start)
	if o.collector != nil {
		o.collector.RecordImages(a.Name(), len(result.Images))
	}
	result.Backend = a.Name()
	result.RequestID = requestID
	if o.cache != nil {
		o.cache.Set(req, result)
	}
	return result, nil
}

// DescribeImage returns a natural-language description of the image at
// url. Capability absence is checked before dispatch, not caught as a
// runtime failure.
func (o *Orchestrator) DescribeImage(ctx context.Context, url string, preferred ...string) (result *DescriptionResult) {
	ctx, span := o.tracer.Start(ctx, "imgen.DescribeImage")
	defer span.End()

	requestID := uuid.NewString()
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("describe panicked", zap.Any("panic", r), zap.String("request_id", requestID))
			result = &DescriptionResult{
				RequestID: requestID,
				Error:     types.UserMessage(types.ErrOperationFailed, fmt.Sprintf("internal fault: %v", r)),
				ErrorCode: string(types.ErrOperationFailed),
			}
		}
	}()

	if strings.TrimSpace(url) == "" {
		te := types.NewError(types.ErrInvalidRequest, "image url must not be empty").WithRequestID(requestID)
		return &DescriptionResult{RequestID: requestID, Error: te.UserMessage, ErrorCode: string(te.Code)}
	}

	run := func(a Adapter) (string, *types.Error) {
		d, ok := describerFor(a)
		if !ok {
			return "", types.NewError(types.ErrFeatureNotAvailable,
				fmt.Sprintf("%s does not support description", a.Name())).WithBackend(a.Name())
		}
		start := time.Now()
		text, err := d.Describe(ctx, url)
		if err != nil {
			o.recordRequest(a.Name(), "describe", "error", start)
			te := Classify(err, a.Name(), requestID)
			LogClassified(o.logger, te)
			return "", te
		}
		o.recordRequest(a.Name(), "describe", "success", start)
		return text, nil
	}

	primary, ok := o.SelectAdapter(ctx, CapDescription, firstOrEmpty(preferred))
	if !ok {
		te := types.NewError(types.ErrFeatureNotAvailable, "no available backend supports description").
			WithRequestID(requestID)
		LogClassified(o.logger, te)
		return &DescriptionResult{RequestID: requestID, Error: te.UserMessage, ErrorCode: string(te.Code)}
	}

	text, te := run(primary)
	backend := primary.Name()
	if te != nil {
		if fallback, ok := o.fallbackAdapter(ctx, CapDescription, primary.Name()); ok {
			if o.collector != nil {
				o.collector.RecordFallback(primary.Name(), fallback.Name())
			}
			text, te = run(fallback)
			backend = fallback.Name()
		}
	}
	if te != nil {
		return &DescriptionResult{
			RequestID: requestID,
			Backend:   te.Backend,
			Error:     te.UserMessage,
			ErrorCode: string(te.Code),
			Retryable: te.Retryable,
		}
	}
	return &DescriptionResult{
		Success:     true,
		Description: text,
		Backend:     backend,
		RequestID:   requestID,
	}
}

// TagImage returns content tags for the image at url, following the same
// select / one-shot-fallback pattern as DescribeImage.
func (o *Orchestrator) TagImage(ctx context.Context, url string, preferred ...string) (result *TagResult) {
	ctx, span := o.tracer.Start(ctx, "imgen.TagImage")
	defer span.End()

	requestID := uuid.NewString()
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("tag panicked", zap.Any("panic", r), zap.String("request_id", requestID))
			result = &TagResult{
				RequestID: requestID,
				Error:     types.UserMessage(types.ErrOperationFailed, fmt.Sprintf("internal fault: %v", r)),
				ErrorCode: string(types.ErrOperationFailed),
			}
		}
	}()

	if strings.TrimSpace(url) == "" {
		te := types.NewError(types.ErrInvalidRequest, "image url must not be empty").WithRequestID(requestID)
		return &TagResult{RequestID: requestID, Error: te.UserMessage, ErrorCode: string(te.Code)}
	}

	run := func(a Adapter) ([]string, *types.Error) {
		tg, ok := taggerFor(a)
		if !ok {
			return nil, types.NewError(types.ErrFeatureNotAvailable,
				fmt.Sprintf("%s does not support tagging", a.Name())).WithBackend(a.Name())
		}
		start := time.Now()
		tags, err := tg.Tag(ctx, url)
		if err != nil {
			o.recordRequest(a.Name(), "tag", "error", start)
			te := Classify(err, a.Name(), requestID)
			LogClassified(o.logger, te)
			return nil, te
		}
		o.recordRequest(a.Name(), "tag", "success", start)
		return tags, nil
	}

	primary, ok := o.SelectAdapter(ctx, CapTagging, firstOrEmpty(preferred))
	if !ok {
		te := types.NewError(types.ErrFeatureNotAvailable, "no available backend supports tagging").
			WithRequestID(requestID)
		LogClassified(o.logger, te)
		return &TagResult{RequestID: requestID, Error: te.UserMessage, ErrorCode: string(te.Code)}
	}

	tags, te := run(primary)
	backend := primary.Name()
	if te != nil {
		if fallback, ok := o.fallbackAdapter(ctx, CapTagging, primary.Name()); ok {
			if o.collector != nil {
				o.collector.RecordFallback(primary.Name(), fallback.Name())
			}
			tags, te = run(fallback)
			backend = fallback.Name()
		}
	}
	if te != nil {
		return &TagResult{
			RequestID: requestID,
			Backend:   te.Backend,
			Error:     te.UserMessage,
			ErrorCode: string(te.Code),
			Retryable: te.Retryable,
		}
	}
	return &TagResult{
		Success:   true,
		Tags:      tags,
		Backend:   backend,
		RequestID: requestID,
	}
}

// Capabilities aggregates what the currently available adapters can do:
// OR of capability flags, union of formats, max of max-image-counts.
func (o *Orchestrator) Capabilities(ctx context.Context) Capabilities {
	var caps Capabilities
	formats := make(map[Format]bool)

	for _, a := range o.AvailableAdapters(ctx) {
		set := a.Capabilities()
		caps.Generation = caps.Generation || set.Has(CapGeneration)
		caps.Description = caps.Description || set.Has(CapDescription)
		caps.Tagging = caps.Tagging || set.Has(CapTagging)
		caps.Transparency = caps.Transparency || set.Has(CapTransparency)
		caps.Logo = caps.Logo || set.Has(CapLogo)
		for _, f := range a.SupportedFormats() {
			formats[f] = true
		}
		if n := a.MaxImageCount(); n > caps.MaxImageCount {
			caps.MaxImageCount = n
		}
	}

	for _, f := range []Format{FormatPNG, FormatJPEG, FormatWebP} {
		if formats[f] {
			caps.Formats = append(caps.Formats, f)
		}
	}
	return caps
}

// ProviderStats reports every configured adapter, available or not.
func (o *Orchestrator) ProviderStats(ctx context.Context) []ProviderStats {
	adapters := o.registry.List()
	stats := make([]ProviderStats, len(adapters))

	g, probeCtx := errgroup.WithContext(ctx)
	for i, a := range adapters {
		g.Go(func() error {
			info := a.Info()
			stats[i] = ProviderStats{
				Name:          info.Name,
				Available:     o.probeAdapter(probeCtx, a),
				Capabilities:  info.Capabilities,
				Formats:       info.Formats,
				MaxImageCount: info.MaxImageCount,
			}
			return nil
		})
	}
	_ = g.Wait()
	return stats
}

func (o *Orchestrator) recordRequest(backend, operation, status string, start time.Time) {
	if o.collector == nil {
		return
	}
	o.collector.RecordRequest(backend, operation, status, time.Since(start))
}

func (o *Orchestrator) recordCache(operation string, hit bool) {
	if o.collector == nil {
		return
	}
	if hit {
		o.collector.RecordCacheHit(operation)
	} else {
		o.collector.RecordCacheMiss(operation)
	}
}

func failedGeneration(requestID string, te *types.Error) *GenerationResult {
	return &GenerationResult{
		Success:   false,
		Backend:   te.Backend,
		RequestID: requestID,
		Error:     te.UserMessage,
		ErrorCode: string(te.Code),
		Retryable: te.Retryable,
	}
}

func firstOrEmpty(values []string) string {
	if len(values) > 0 {
		return values[0]
	}
	return ""
}
