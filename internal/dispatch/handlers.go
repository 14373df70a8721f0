package dispatch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/visionmcp/internal/imageutil"
	"github.com/BaSui01/visionmcp/internal/storage"
	"github.com/BaSui01/visionmcp/types"
)

type configurable interface {
	Configured() bool
}

func (d *Dispatcher) analyzeImage(ctx context.Context, p *prepared, scan types.SecurityScanResult) (any, error) {
	if d.analyzer == nil {
		return nil, types.NewConfigurationError("vision analyzer is not configured")
	}

	img, err := d.loader.Load(ctx, imageutil.Source{
		Path: p.imagePath,
		URL:  p.imageURL,
		Data: p.imageData,
	})
	if err != nil {
		return nil, err
	}
	scan.FileValidated = true
	scan.URLValidated = img.URLValidated

	start := time.Now()
	analysis, err := d.analyzer.Analyze(ctx, img, p.analysisType)
	d.recordUpstream(d.analyzer.Name(), err, time.Since(start))
	if err != nil {
		return nil, err
	}

	d.logger.Debug("image analyzed",
		zap.String("analysis_type", string(p.analysisType)),
		zap.String("source", string(img.Source.Kind)),
		zap.String("checksum", img.Checksum),
	)
	return &types.AnalysisResult{
		AnalysisType:  p.analysisType,
		Confidence:    analysis.Confidence,
		Metadata:      analysis.Metadata,
		SecurityScan:  scan,
		IntegrityInfo: img.Integrity(),
		Source:        img.Source,
		Model:         analysis.Model,
	}, nil
}

func (d *Dispatcher) uploadImage(ctx context.Context, p *prepared, _ types.SecurityScanResult) (any, error) {
	if d.uploader == nil {
		return nil, types.NewConfigurationError("storage uploader is not configured")
	}
	if err := storage.ValidateBucket(p.bucket); err != nil {
		return nil, types.NewValidationError(err.Error())
	}

	img, err := d.loader.Load(ctx, imageutil.Source{Data: p.imageData})
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := d.uploader.Upload(ctx, storage.UploadRequest{
		Bucket:   p.bucket,
		Path:     p.path,
		Data:     img.Data,
		MimeType: img.MimeType,
		Checksum: img.Checksum,
		Metadata: p.metadata,
	})
	d.recordUpstream(d.uploader.Name(), err, time.Since(start))
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (d *Dispatcher) securityStatus(_ context.Context, _ *prepared, _ types.SecurityScanResult) (any, error) {
	collaborators := map[string]any{}
	if d.analyzer != nil {
		collaborators["vision"] = collaboratorStatus(d.analyzer.Name(), d.analyzer)
	}
	if d.uploader != nil {
		collaborators["storage"] = collaboratorStatus(d.uploader.Name(), d.uploader)
	}

	return map[string]any{
		"security_config": d.cfg.Security.Snapshot(),
		"rate_limiter": map[string]any{
			"store":               d.limiter.StoreName(),
			"window_seconds":      d.limiter.Window().Seconds(),
			"max_requests":        d.limiter.MaxRequests(),
			"tracked_identifiers": d.limiter.TrackedIdentifiers(),
		},
		"scanners": map[string]any{
			"injection_patterns": d.injection.PatternCount(),
			"pii_enabled":        d.pii != nil,
			"pii_action":         string(d.cfg.PIIAction),
		},
		"audit":         d.audit.Summary(statusRecentEntries),
		"collaborators": collaborators,
		"tool_timeout":  d.cfg.ToolTimeout.String(),
	}, nil
}

func collaboratorStatus(name string, c any) map[string]any {
	status := map[string]any{"name": name, "configured": true}
	if cc, ok := c.(configurable); ok {
		status["configured"] = cc.Configured()
	}
	return status
}

func (d *Dispatcher) recordUpstream(service string, err error, elapsed time.Duration) {
	if d.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
		if types.IsErrorCode(err, types.ErrUpstreamTimeout) {
			status = "timeout"
		}
	}
	d.metrics.RecordUpstreamRequest(service, status, elapsed)
}
