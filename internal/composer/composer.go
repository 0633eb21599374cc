package composer

import (
	"log/slog"

	"github.com/lamim/copyforge/internal/library"
	"github.com/lamim/copyforge/internal/util"
	"github.com/lamim/copyforge/pkg/models"
)

// Placeholders substituted when a module cannot be resolved
const (
	PlaceholderStyle    = "[風格: 未指定]"
	PlaceholderAudience = "[受眾: 未指定]"
	PlaceholderContext  = "[情境: 未指定]"
	PlaceholderProduct  = "[未指定產品]"
	PlaceholderCTA      = "[未指定 CTA]"
	DefaultFormat       = "短文案"
)

// Fixed phrases every composed prompt contains
const (
	SystemRolePhrase   = "你是一位頂尖的行銷文案專家。"
	CTAPlacementPhrase = "**CTA 必須清晰且放在結尾**"
)

const skeletonTemplate = `[SYSTEM INSTRUCTION]
` + SystemRolePhrase + `
{{.Style}}
{{.Audience}}
{{.Context}}

[CONTEXT PARAMETERS]
- 產品/服務: {{.Product}}
- 呼籲行動 (CTA): {{.CTA}}

[TASK INSTRUCTION]
請根據上述所有條件和限制，為產品生成一篇 {{.Format}}。
請確保內容符合品牌風格、目標受眾的語氣，並且 ` + CTAPlacementPhrase + `。
`

var skeleton = util.MustParseTemplate(skeletonTemplate)

// params fills the five substitution points of the skeleton
type params struct {
	Style    string
	Audience string
	Context  string
	Product  string
	CTA      string
	Format   string
}

// Composer turns a user config into the final generation prompt
type Composer struct {
	lib    *library.Library
	logger *slog.Logger
}

// New creates a composer reading from lib
func New(lib *library.Library, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{
		lib:    lib,
		logger: logger.With("component", "composer"),
	}
}

// Compose fills the prompt skeleton from cfg. Unknown module types are
// ignored and unresolved modules become placeholders, so it never fails.
func (c *Composer) Compose(cfg models.UserConfig) string {
	p := params{
		Style:    PlaceholderStyle,
		Audience: PlaceholderAudience,
		Context:  PlaceholderContext,
		Product:  PlaceholderProduct,
		CTA:      PlaceholderCTA,
		Format:   DefaultFormat,
	}

	for moduleType, moduleName := range cfg {
		if moduleName == "" {
			continue
		}
		switch moduleType {
		case models.ModuleStyle:
			c.resolveFragment(&p.Style, moduleType, moduleName)
		case models.ModuleAudience:
			c.resolveFragment(&p.Audience, moduleType, moduleName)
		case models.ModuleContext:
			c.resolveFragment(&p.Context, moduleType, moduleName)
		case models.ModuleProduct:
			p.Product = c.resolveDescription(moduleType, moduleName)
		case models.ModuleCTA:
			p.CTA = c.resolveDescription(moduleType, moduleName)
		case models.ModuleFormat:
			p.Format = moduleName
		}
	}

	prompt, err := util.Execute(skeleton, p)
	if err != nil {
		// Only reachable if the skeleton and params drift apart
		c.logger.Error("Failed to render prompt skeleton", "error", err)
	}
	return prompt
}

func (c *Composer) resolveFragment(dst *string, moduleType, moduleName string) {
	if f, ok := c.lib.Lookup(moduleType, moduleName); ok {
		*dst = f.Text()
		return
	}
	c.logger.Debug("Module not found, using placeholder", "module_type", moduleType, "module_name", moduleName)
}

func (c *Composer) resolveDescription(moduleType, moduleName string) string {
	if f, ok := c.lib.Lookup(moduleType, moduleName); ok {
		return f.Text()
	}
	return moduleName
}
