package vision

import (
	"context"

	"github.com/BaSui01/visionmcp/internal/imageutil"
	"github.com/BaSui01/visionmcp/types"
)

// Analysis 模型返回的结构化分析
type Analysis struct {
	Confidence float64
	Metadata   map[string]any
	Model      string
}

// Analyzer 多模态图像分析协作方
type Analyzer interface {
	Analyze(ctx context.Context, img *imageutil.Image, analysisType types.AnalysisType) (*Analysis, error)
	Name() string
}
