// Package content holds the presentational data of the site: profile copy,
// projects, experience and the pipeline stage table.
package content

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/denisenanni/portfolio/internal/pipeline"
)

//go:embed content.yaml
var defaultContent []byte

// Site is everything the page renders.
type Site struct {
	Profile         Profile   `yaml:"profile" validate:"required"`
	Nav             []string  `yaml:"nav" validate:"required,min=1,unique,dive,required"`
	Technologies    []string  `yaml:"technologies" validate:"dive,required"`
	Projects        []Project `yaml:"projects" validate:"dive"`
	Experience      []Job     `yaml:"experience" validate:"dive"`
	BehindTheScenes []Section `yaml:"behind_the_scenes" validate:"dive"`
	Pipeline        Pipeline  `yaml:"pipeline" validate:"required"`
}

type Profile struct {
	Name      string   `yaml:"name" validate:"required"`
	Role      string   `yaml:"role" validate:"required"`
	Greeting  string   `yaml:"greeting"`
	Tagline   string   `yaml:"tagline"`
	Email     string   `yaml:"email" validate:"required,email"`
	ResumeURL string   `yaml:"resume_url"`
	About     []string `yaml:"about"`
	Socials   []Social `yaml:"socials" validate:"dive"`
	BuiltWith string   `yaml:"built_with"`
}

type Social struct {
	Name string `yaml:"name" validate:"required"`
	URL  string `yaml:"url" validate:"required,url"`
}

type Project struct {
	Title       string   `yaml:"title" validate:"required"`
	Description string   `yaml:"description" validate:"required"`
	Tech        []string `yaml:"tech"`
	GitHub      string   `yaml:"github" validate:"omitempty,url"`
	Demo        string   `yaml:"demo" validate:"omitempty,url"`
	Image       string   `yaml:"image"`
}

type Job struct {
	Title      string   `yaml:"title" validate:"required"`
	Company    string   `yaml:"company" validate:"required"`
	Period     string   `yaml:"period" validate:"required"`
	Highlights []string `yaml:"highlights"`
}

// Section is one block of the behind-the-scenes modal.
type Section struct {
	Title       string `yaml:"title" validate:"required"`
	Icon        string `yaml:"icon"`
	Description string `yaml:"description" validate:"required"`
	Code        string `yaml:"code"`
}

// Pipeline is the stage table of the diagram. Steps default to the site's
// own build pipeline and edges to a straight chain through the steps.
type Pipeline struct {
	Layout string          `yaml:"layout" validate:"omitempty,oneof=square circle"`
	Steps  []pipeline.Step `yaml:"steps" validate:"dive"`
	Edges  []pipeline.Edge `yaml:"edges"`
}

// NavLink is a numbered navigation entry pointing at a section anchor.
type NavLink struct {
	ID     string
	Label  string
	Number string
}

var validate = validator.New()

// Default returns the embedded site content.
func Default() (*Site, error) {
	return Parse(defaultContent)
}

// Load reads content from path, or the embedded copy when path is empty.
func Load(path string) (*Site, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading content file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML site content.
func Parse(data []byte) (*Site, error) {
	var site Site
	if err := yaml.Unmarshal(data, &site); err != nil {
		return nil, fmt.Errorf("parsing content: %w", err)
	}
	if len(site.Pipeline.Steps) == 0 {
		site.Pipeline.Steps = pipeline.DefaultSteps()
	}
	if err := validate.Struct(&site); err != nil {
		return nil, fmt.Errorf("invalid content: %w", err)
	}
	return &site, nil
}

// NavLinks numbers the navigation entries the way section headings are
// numbered: 01., 02., ...
func (s *Site) NavLinks() []NavLink {
	links := make([]NavLink, len(s.Nav))
	for i, id := range s.Nav {
		links[i] = NavLink{ID: id, Label: titleCase(id), Number: SectionNumber(i + 1)}
	}
	return links
}

// SectionNumber formats a one-based section index.
func SectionNumber(n int) string {
	return fmt.Sprintf("%02d.", n)
}

// Diagram builds the pipeline diagram for the configured layout. An empty
// layout name falls back to the content's own choice.
func (s *Site) Diagram(layout string) (*pipeline.Diagram, error) {
	if layout == "" {
		layout = s.Pipeline.Layout
	}
	l, err := pipeline.LayoutByName(layout, pipeline.DefaultViewBox)
	if err != nil {
		return nil, err
	}
	edges := s.Pipeline.Edges
	if len(edges) == 0 {
		edges = pipeline.Sequential(len(s.Pipeline.Steps))
	}
	return pipeline.New(s.Pipeline.Steps, edges, pipeline.Options{Layout: l})
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
