package block

import (
	"bytes"
	"embed"
	"html/template"
	"sync"

	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

//go:embed templates/*.gohtml
var templatesFS embed.FS

var (
	tmplOnce sync.Once
	tmpl     *template.Template

	// raw HTML in text blocks is dropped by goldmark's default renderer.
	markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))
)

func templates() *template.Template {
	tmplOnce.Do(func() {
		tmpl = template.Must(
			template.New("blocks").
				Funcs(template.FuncMap{"inc": func(i int) int { return i + 1 }}).
				ParseFS(templatesFS, "templates/*.gohtml"),
		)
	})
	return tmpl
}

// Display is the rendered, read-only form of a block.
type Display struct {
	BlockID string        `json:"block_id"`
	Type    Type          `json:"type"`
	Order   int           `json:"order"`
	HTML    template.HTML `json:"html"`
}

// Render produces the display of b. Incomplete configs fail with an InvalidConfigError.
func Render(b Block) (Display, error) {
	if err := Validate(b.Config); err != nil {
		if icErr, ok := err.(*InvalidConfigError); ok {
			icErr.BlockID = b.ID
		}
		return Display{}, err
	}

	v := Visit[view](b.Config, renderers{})
	if v.err != nil {
		return Display{}, errors.Wrapf(v.err, "render %s block %s", b.Type, b.ID)
	}
	var buf bytes.Buffer
	if err := templates().ExecuteTemplate(&buf, v.name, v.data); err != nil {
		return Display{}, errors.Wrapf(err, "render %s block %s", b.Type, b.ID)
	}
	return Display{BlockID: b.ID, Type: b.Type, Order: b.Order, HTML: template.HTML(buf.String())}, nil
}

// RenderAll renders blocks in order and stops at the first failure.
func RenderAll(blocks []Block) ([]Display, error) {
	displays := make([]Display, 0, len(blocks))
	for _, b := range blocks {
		d, err := Render(b)
		if err != nil {
			return nil, err
		}
		displays = append(displays, d)
	}
	return displays, nil
}

type view struct {
	name string
	data interface{}
	err  error
}

type textView struct {
	Content   template.HTML
	Alignment Alignment
	FontSize  FontSize
}

type renderers struct{}

var _ Visitor[view] = renderers{}

func (renderers) Text(c TextConfig) view {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(c.Content), &buf); err != nil {
		return view{err: err}
	}
	return view{name: "text", data: textView{
		Content:   template.HTML(buf.String()),
		Alignment: c.Alignment,
		FontSize:  c.FontSize,
	}}
}

func (renderers) Gallery(c GalleryConfig) view           { return view{name: "gallery", data: c} }
func (renderers) Events(c EventsConfig) view             { return view{name: "events", data: c} }
func (renderers) Leadership(c LeadershipConfig) view     { return view{name: "leadership", data: c} }
func (renderers) Achievements(c AchievementsConfig) view { return view{name: "achievements", data: c} }
func (renderers) Stats(c StatsConfig) view               { return view{name: "stats", data: c} }
func (renderers) CTA(c CTAConfig) view                   { return view{name: "cta", data: c} }
