package vision

import "github.com/BaSui01/visionmcp/types"

const lifestylePrompt = `Analyze this lifestyle image and respond with a single JSON object with these fields:
- "scene": short description of the scene
- "setting": indoor or outdoor, and the kind of location
- "people": number of people and what they look like, empty if none
- "activities": list of activities taking place
- "mood": overall mood or atmosphere
- "colors": list of dominant colors
- "objects": list of notable objects
- "style": photographic or aesthetic style
- "confidence": number between 0 and 1 for how confident you are in this analysis
Respond with JSON only.`

const productPrompt = `Analyze this product image and respond with a single JSON object with these fields:
- "product_type": what kind of product this is
- "brand": brand name if visible, otherwise null
- "colors": list of product colors
- "materials": list of likely materials
- "features": list of notable features
- "condition": new, used, or damaged
- "target_audience": who the product is for
- "price_range": estimated price range such as budget, mid-range or premium
- "confidence": number between 0 and 1 for how confident you are in this analysis
Respond with JSON only.`

// PromptFor 返回分析类型对应的固定提示词，未知类型回落到 lifestyle
func PromptFor(t types.AnalysisType) string {
	if t == types.AnalysisProduct {
		return productPrompt
	}
	return lifestylePrompt
}
