package printing

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/osteele/liquid"
)

//go:embed templates/*.liquid
var embeddedTemplates embed.FS

// Template names understood by Render. Thermal is the narrow per-operator
// slip; sheet is the collector's A4 recap.
const (
	TemplateThermal = "comanda_thermal"
	TemplateSheet   = "comanda_sheet"
)

// TemplateEngine renders comanda documents with Liquid templates. Templates
// ship embedded; a directory can override them ("<name>.liquid" files) so a
// warehouse can restyle its slips without a rebuild.
type TemplateEngine struct {
	engine *liquid.Engine
	dir    string
	cache  sync.Map // name -> *liquid.Template
}

// NewTemplateEngine creates the engine with the comanda filters registered.
// dir is the optional override directory; empty means embedded only.
func NewTemplateEngine(dir string) *TemplateEngine {
	te := &TemplateEngine{engine: liquid.NewEngine(), dir: dir}
	te.registerFilters()
	return te
}

// registerFilters adds the formatting filters the comanda templates use.
// Numbers render Spanish style: comma decimals, "12,50 €".
func (te *TemplateEngine) registerFilters() {
	// Quantity without trailing zeros: {{ line.qty | qty }} -> "2" or "2,5"
	te.engine.RegisterFilter("qty", func(value interface{}) string {
		f, ok := toFloat(value)
		if !ok {
			return fmt.Sprintf("%v", value)
		}
		return strings.ReplaceAll(strconv.FormatFloat(f, 'f', -1, 64), ".", ",")
	})

	// Price with currency: {{ line.price | money: "EUR" }} -> "12,50 €"
	te.engine.RegisterFilter("money", func(value interface{}, currency string) string {
		f, ok := toFloat(value)
		if !ok {
			return ""
		}
		sym := currency
		if currency == "EUR" || currency == "" {
			sym = "€"
		}
		return strings.ReplaceAll(fmt.Sprintf("%.2f", f), ".", ",") + " " + sym
	})

	// Uppercase heading: {{ client.name | upcase_es }}
	te.engine.RegisterFilter("upcase_es", strings.ToUpper)
}

func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case *float64:
		if v == nil {
			return 0, false
		}
		return *v, true
	case nil:
		return 0, false
	default:
		return 0, false
	}
}

// Render renders the named template with the given bindings. Parsed
// templates are cached per name; override files are read once.
func (te *TemplateEngine) Render(name string, bindings map[string]interface{}) (string, error) {
	if cached, ok := te.cache.Load(name); ok {
		return cached.(*liquid.Template).RenderString(bindings)
	}

	src, err := te.source(name)
	if err != nil {
		return "", err
	}
	tpl, err := te.engine.ParseString(src)
	if err != nil {
		return "", fmt.Errorf("parse template %s: %w", name, err)
	}
	te.cache.Store(name, tpl)

	out, err := tpl.RenderString(bindings)
	if err != nil {
		return "", fmt.Errorf("render template %s: %w", name, err)
	}
	return out, nil
}

func (te *TemplateEngine) source(name string) (string, error) {
	if te.dir != "" {
		p := filepath.Join(te.dir, name+".liquid")
		if data, err := os.ReadFile(p); err == nil {
			return string(data), nil
		}
	}
	data, err := embeddedTemplates.ReadFile("templates/" + name + ".liquid")
	if err != nil {
		return "", fmt.Errorf("unknown template %s", name)
	}
	return string(data), nil
}
