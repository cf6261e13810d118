// Package designer 负责把卡片结构确定性地渲染为图片生成指令
package designer

import (
	"sort"

	"inknote-ai-api/pkg/errors"
)

// DefaultStyle 默认视觉风格
const DefaultStyle = "hand_drawn"

// UniversalNegativeSuffix 所有风格共用的排除列表
// 下游图片提供商针对该后缀调优过，内容不可改动
const UniversalNegativeSuffix = "blurry, low quality, distorted text, watermark, multiple frames, comic panels, photo-realistic"

// StyleSpec 单个视觉风格的渲染提示
type StyleSpec struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Directive        string `json:"directive"`
	Palette          string `json:"palette"`
	KeywordEmphasis  string `json:"keyword_emphasis"`
	NegativeFragment string `json:"-"`
}

// 静态风格目录，ID 在 API 层对外可见
var styleCatalog = map[string]StyleSpec{
	"hand_drawn": {
		ID:              "hand_drawn",
		Name:            "手绘笔记",
		Directive:       "hand-drawn sketchnote style, loose ink linework, doodle icons, paper texture background",
		Palette:         "warm off-white paper, black ink, accents in mustard yellow and teal",
		KeywordEmphasis: "keywords underlined with a rough marker stroke",
	},
	"watercolor": {
		ID:              "watercolor",
		Name:            "水彩",
		Directive:       "soft watercolor illustration, wet-on-wet washes, gentle color bleeding at edges",
		Palette:         "pastel blues, pinks and sage green on cold-press paper white",
		KeywordEmphasis: "keywords lettered in darker pigment with a fine brush",
	},
	"minimal_flat": {
		ID:               "minimal_flat",
		Name:             "极简扁平",
		Directive:        "minimal flat design, clean geometric icons, generous whitespace, thin divider lines",
		Palette:          "white background, two accent colors only: deep navy and coral",
		KeywordEmphasis:  "keywords set in bold geometric sans-serif",
		NegativeFragment: "texture, gradients, shadows",
	},
	"cute_cartoon": {
		ID:              "cute_cartoon",
		Name:            "可爱卡通",
		Directive:       "cute cartoon style, rounded chibi mascots illustrating each idea, thick friendly outlines",
		Palette:         "bright candy colors, cream background",
		KeywordEmphasis: "keywords inside hand-drawn speech bubbles",
	},
	"blackboard": {
		ID:               "blackboard",
		Name:             "黑板板书",
		Directive:        "chalkboard lecture style, white and colored chalk strokes on dark slate",
		Palette:          "dark green slate background, white chalk, accents in yellow and pink chalk",
		KeywordEmphasis:  "keywords boxed with a chalk rectangle",
		NegativeFragment: "paper, ink",
	},
}

// GetStyle 查找风格，未知 ID 返回 ErrStyleNotFound
func GetStyle(id string) (StyleSpec, error) {
	if id == "" {
		id = DefaultStyle
	}
	spec, ok := styleCatalog[id]
	if !ok {
		return StyleSpec{}, errors.ErrStyleNotFound.WithDetailf("unknown style %q", id)
	}
	return spec, nil
}

// ListStyles 返回全部风格，按 ID 排序
func ListStyles() []StyleSpec {
	out := make([]StyleSpec, 0, len(styleCatalog))
	for _, spec := range styleCatalog {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// NegativePrompt 风格专属排除片段 + 通用后缀
func (s StyleSpec) NegativePrompt() string {
	if s.NegativeFragment == "" {
		return UniversalNegativeSuffix
	}
	return s.NegativeFragment + ", " + UniversalNegativeSuffix
}
