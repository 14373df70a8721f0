package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/visionmcp/guardrails"
	"github.com/BaSui01/visionmcp/internal/audit"
	"github.com/BaSui01/visionmcp/internal/imageutil"
	"github.com/BaSui01/visionmcp/internal/metrics"
	"github.com/BaSui01/visionmcp/internal/ratelimit"
	"github.com/BaSui01/visionmcp/internal/storage"
	"github.com/BaSui01/visionmcp/internal/telemetry"
	"github.com/BaSui01/visionmcp/internal/vision"
	"github.com/BaSui01/visionmcp/types"
)

// DefaultToolTimeout 单次工具委派的超时
const DefaultToolTimeout = 60 * time.Second

// 审计摘要中返回的最近记录数
const statusRecentEntries = 10

// Config 管线配置
type Config struct {
	Security    guardrails.SecurityConfig
	ToolTimeout time.Duration
	PIIAction   guardrails.PIIAction
}

// Deps 管线协作方。Limiter、Loader、Audit 必填。
type Deps struct {
	Limiter  *ratelimit.Limiter
	Loader   *imageutil.Loader
	Analyzer vision.Analyzer
	Uploader storage.Uploader
	Audit    *audit.Log
	Metrics  *metrics.Collector
	Logger   *zap.Logger
}

// Dispatcher 工具调用管线
type Dispatcher struct {
	cfg       Config
	limiter   *ratelimit.Limiter
	loader    *imageutil.Loader
	analyzer  vision.Analyzer
	uploader  storage.Uploader
	audit     *audit.Log
	metrics   *metrics.Collector
	sanitizer *guardrails.Sanitizer
	injection *guardrails.InjectionDetector
	pii       *guardrails.PIIDetector
	scanner   *guardrails.ValidatorChain
	tools     map[string]*tool
	order     []string
	logger    *zap.Logger
}

// New 创建 Dispatcher
func New(cfg Config, deps Deps) (*Dispatcher, error) {
	if deps.Limiter == nil {
		return nil, errors.New("dispatch: rate limiter is required")
	}
	if deps.Loader == nil {
		return nil, errors.New("dispatch: image loader is required")
	}
	if deps.Audit == nil {
		return nil, errors.New("dispatch: audit log is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = DefaultToolTimeout
	}
	if cfg.PIIAction == "" {
		cfg.PIIAction = guardrails.PIIActionWarn
	}

	sec := cfg.Security
	d := &Dispatcher{
		cfg:       cfg,
		limiter:   deps.Limiter,
		loader:    deps.Loader,
		analyzer:  deps.Analyzer,
		uploader:  deps.Uploader,
		audit:     deps.Audit,
		metrics:   deps.Metrics,
		sanitizer: guardrails.NewSanitizer(sec.MaxPromptLength()),
		logger:    deps.Logger.With(zap.String("component", "dispatcher")),
	}

	d.injection = guardrails.NewInjectionDetector(&guardrails.InjectionDetectorConfig{
		Threshold:      sec.InjectionThreshold(),
		MaxDecodeDepth: sec.MaxBase64DecodeDepth(),
		Block:          sec.PatternBlockingEnabled(),
		CustomPatterns: sec.ExtraInjectionPatterns(),
		Priority:       50,
	})
	d.scanner = guardrails.NewValidatorChain(guardrails.ChainModeParallel,
		guardrails.NewLengthValidator(sec.MaxPromptLength()),
		d.injection,
	)
	if sec.PIIDetectionEnabled() {
		d.pii = guardrails.NewPIIDetector(&guardrails.PIIDetectorConfig{
			Action:   cfg.PIIAction,
			Priority: 100,
		})
		d.scanner.Add(d.pii)
	}

	d.register(&tool{
		def:      analyzeImageDefinition(),
		validate: validateAnalyzeArgs,
		run:      d.analyzeImage,
		scanned:  true,
	})
	d.register(&tool{
		def:      uploadDefinition(),
		validate: validateUploadArgs,
		run:      d.uploadImage,
		scanned:  true,
	})
	d.register(&tool{
		def:      securityStatusDefinition(),
		validate: validateNoArgs,
		run:      d.securityStatus,
	})
	return d, nil
}

func (d *Dispatcher) register(t *tool) {
	if d.tools == nil {
		d.tools = make(map[string]*tool)
	}
	d.tools[t.def.Name] = t
	d.order = append(d.order, t.def.Name)
}

// Definitions 返回全部工具定义，顺序固定
func (d *Dispatcher) Definitions() []Definition {
	defs := make([]Definition, 0, len(d.order))
	for _, name := range d.order {
		defs = append(defs, d.tools[name].def)
	}
	return defs
}

// Audit 审计日志
func (d *Dispatcher) Audit() *audit.Log { return d.audit }

// Call 执行一次工具调用。返回值永不为 nil，错误体现在 Response.Err 中。
func (d *Dispatcher) Call(ctx context.Context, req CallRequest) *Response {
	start := time.Now()
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if req.Args == nil {
		req.Args = map[string]any{}
	}

	ctx = types.WithRequestID(ctx, req.RequestID)
	ctx = types.WithIdentifier(ctx, req.Identifier)
	ctx, span := telemetry.Tracer().Start(ctx, "tool.call", trace.WithAttributes(
		attribute.String("tool.name", req.Tool),
		attribute.String("request.id", req.RequestID),
	))
	defer span.End()

	resp := &Response{RequestID: req.RequestID, Tool: req.Tool}
	result, state, err := d.process(ctx, span, req)
	resp.ProcessingTimeMS = time.Since(start).Milliseconds()

	if err != nil {
		resp.Err = toError(err)
		resp.FailedAt = state
		span.RecordError(err)
		span.SetStatus(codes.Error, string(resp.Err.Code))
	} else {
		resp.Result = result
		span.SetStatus(codes.Ok, "")
	}

	d.record(req, resp, time.Since(start))
	span.AddEvent(string(StateAudited))
	span.AddEvent(string(StateResponded))
	return resp
}

// process 执行 RATE_CHECKED 到 DELEGATED 的各阶段，返回失败所在阶段
func (d *Dispatcher) process(ctx context.Context, span trace.Span, req CallRequest) (result any, state State, err error) {
	state = StateReceived
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("tool call panicked",
				zap.String("tool", req.Tool),
				zap.String("request_id", req.RequestID),
				zap.String("stage", string(state)),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			result = nil
			err = types.NewInternalError("internal error")
		}
	}()
	span.AddEvent(string(StateReceived))

	decision, err := d.limiter.CheckRateLimit(ctx, req.Identifier)
	if err != nil {
		return nil, state, types.NewInternalError("rate limit check failed").WithCause(err)
	}
	if !decision.Allowed {
		if d.metrics != nil {
			d.metrics.RecordRateLimited(req.Tool)
		}
		return nil, state, types.NewRateLimitError(decision.RetryAfter)
	}
	state = StateRateChecked
	span.AddEvent(string(state))

	t, ok := d.tools[req.Tool]
	if !ok {
		return nil, state, types.NewToolNotFoundError(req.Tool)
	}
	args := d.sanitizer.SanitizeArgs(req.Args, argImageData)
	p, err := t.validate(args)
	if err != nil {
		return nil, state, err
	}
	state = StateValidated
	span.AddEvent(string(state))

	// 扫描原始参数，清洗会去掉标签等特征；下游只拿到清洗后的参数
	var scan types.SecurityScanResult
	if t.scanned {
		if scan, err = d.scan(ctx, req.Args); err != nil {
			return nil, state, err
		}
	}
	state = StateScanned
	span.AddEvent(string(state))

	callCtx, cancel := context.WithTimeout(ctx, d.cfg.ToolTimeout)
	defer cancel()
	result, err = t.run(callCtx, p, scan)
	if err != nil {
		if _, typed := types.AsError(err); !typed && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			err = types.NewTimeoutError(req.Tool, err)
		}
		return nil, state, err
	}
	state = StateDelegated
	span.AddEvent(string(state))
	return result, state, nil
}

// scan 对文本参数执行注入与 PII 扫描
func (d *Dispatcher) scan(ctx context.Context, args map[string]any) (types.SecurityScanResult, error) {
	scan := types.SecurityScanResult{}
	text := scanText(args)
	if text == "" {
		return scan, nil
	}

	res, err := d.scanner.Validate(ctx, text)
	if err != nil {
		return scan, types.NewInternalError("security scan failed").WithCause(err)
	}

	if v, ok := res.Metadata["injection_detected"].(bool); ok {
		scan.PromptInjectionDetected = v
	}
	if v, ok := res.Metadata["injection_confidence"].(float64); ok {
		scan.InjectionConfidence = v
	}
	if v, ok := res.Metadata["injection_patterns"].([]string); ok && len(v) > 0 {
		scan.InjectionPatterns = v
	}
	if v, ok := res.Metadata["pii_detected"].(bool); ok {
		scan.PIIDetected = v
	}
	if v, ok := res.Metadata["pii_types"].([]string); ok && len(v) > 0 {
		scan.PIITypes = v
	}

	if d.metrics != nil {
		if scan.PromptInjectionDetected {
			d.metrics.RecordSecurityDetection("prompt_injection")
		}
		for _, kind := range scan.PIITypes {
			d.metrics.RecordSecurityDetection("pii_" + kind)
		}
	}
	for _, w := range res.Warnings {
		d.logger.Warn("security scan warning", zap.String("warning", w))
	}

	if !res.Valid {
		msgs := make([]string, 0, len(res.Errors))
		for _, e := range res.Errors {
			msgs = append(msgs, e.Message)
		}
		return scan, types.NewGuardrailsError(strings.Join(msgs, "; "))
	}
	return scan, nil
}

// record 写入唯一一条审计记录并上报指标
func (d *Dispatcher) record(req CallRequest, resp *Response, elapsed time.Duration) {
	entry := audit.Entry{
		Tool:       req.Tool,
		Success:    !resp.IsError(),
		InputHash:  inputHash(req.Args),
		RequestID:  req.RequestID,
		Identifier: req.Identifier,
		DurationMS: elapsed.Milliseconds(),
	}
	if resp.IsError() {
		entry.Error = resp.ErrorMessage()
	}
	d.audit.Record(entry)

	status := "success"
	if resp.IsError() {
		status = strings.ToLower(string(resp.Err.Code))
		d.logger.Info("tool call failed",
			zap.String("tool", req.Tool),
			zap.String("request_id", req.RequestID),
			zap.String("stage", string(resp.FailedAt)),
			zap.String("code", string(resp.Err.Code)),
			zap.Error(resp.Err),
		)
	} else {
		d.logger.Debug("tool call completed",
			zap.String("tool", req.Tool),
			zap.String("request_id", req.RequestID),
			zap.Duration("duration", elapsed),
		)
	}
	if d.metrics != nil {
		d.metrics.RecordToolCall(req.Tool, status, elapsed)
	}
}

// inputHash 参数的 SHA-256。json 序列化 map 时键已排序，结果是确定的。
func inputHash(args map[string]any) string {
	raw, err := json.Marshal(args)
	if err != nil {
		return imageutil.HashString(fmt.Sprintf("%v", args))
	}
	return imageutil.HashString(string(raw))
}

func toError(err error) *types.Error {
	if e, ok := types.AsError(err); ok {
		return e
	}
	return types.NewInternalError("internal error").WithCause(err)
}
