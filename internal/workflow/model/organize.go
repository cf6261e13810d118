package model

// OrganizeInput 文本结构化拆解的输入
type OrganizeInput struct {
	// Text 已通过长度校验的原始文本
	Text string
	// Mode compact（单卡）或 detailed（按知识点分卡）
	Mode     string
	Language string

	Provider string
	Model    string

	Temperature *float32
	MaxTokens   *int
}

// OrganizeCard 模型返回的单张卡片拆解结果
type OrganizeCard struct {
	Title               string           `json:"title"`
	SummaryContext      string           `json:"summary_context"`
	VisualThemeKeywords string           `json:"visual_theme_keywords"`
	Modules             []OrganizeModule `json:"modules"`
}

// OrganizeModule 卡片内的一个内容小节
type OrganizeModule struct {
	ID       string   `json:"id"`
	Heading  string   `json:"heading"`
	Content  string   `json:"content"`
	Keywords []string `json:"keywords"`
}

// OrganizeOutput 模型返回的完整拆解结果
type OrganizeOutput struct {
	TotalKnowledgePoints int            `json:"total_knowledge_points"`
	Cards                []OrganizeCard `json:"cards"`
}
