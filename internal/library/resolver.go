// Package library resolves on-disk locations for works, episodes and
// compiled outputs under the configured library root.
package library

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"serialarr/pkg/models"
)

// Formats holds the naming templates for library paths. Tokens are written
// as {Name} and replaced with sanitized values.
type Formats struct {
	WorkFolder   string
	EpisodeFile  string
	VolumeFolder string
	CompiledName string
}

// PathResolver maps works and episodes to filesystem paths
type PathResolver struct {
	root    string
	formats Formats
}

// NewPathResolver creates a path resolver rooted at the given library directory
func NewPathResolver(root string, formats Formats) *PathResolver {
	return &PathResolver{root: root, formats: formats}
}

// Root returns the library root directory
func (r *PathResolver) Root() string {
	return r.root
}

// WorkDir returns the directory holding all files for a work
func (r *PathResolver) WorkDir(work *models.Work) string {
	name := expand(r.formats.WorkFolder, map[string]string{
		"Title":  Sanitize(work.Title),
		"Author": Sanitize(work.Author),
		"Id":     fmt.Sprintf("%d", work.ID),
	})
	return filepath.Join(r.root, name)
}

// EpisodePath returns the path for an episode's downloaded content. Episodes
// carrying a volume number are placed in a volume subfolder.
func (r *PathResolver) EpisodePath(work *models.Work, episode *models.Episode) string {
	dir := r.WorkDir(work)
	if episode.VolumeNumber > 0 {
		volume := expand(r.formats.VolumeFolder, map[string]string{
			"Volume": fmt.Sprintf("%d", episode.VolumeNumber),
			"Title":  Sanitize(episode.VolumeTitle),
		})
		dir = filepath.Join(dir, volume)
	}
	name := expand(r.formats.EpisodeFile, map[string]string{
		"Index": fmt.Sprintf("%04d", episode.Sequence),
		"Title": Sanitize(episode.Title),
	})
	return filepath.Join(dir, name+".html")
}

// CompiledPath returns the path for a compiled bundle of a work. The suffix
// distinguishes full, volume and selection compilations.
func (r *PathResolver) CompiledPath(work *models.Work, suffix string) string {
	name := expand(r.formats.CompiledName, map[string]string{
		"Title":  Sanitize(work.Title),
		"Author": Sanitize(work.Author),
		"Suffix": Sanitize(suffix),
	})
	return filepath.Join(r.WorkDir(work), name+".html")
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Sanitize converts a title into a string safe to use as a path component.
// Accents are folded to their base letters and characters outside a
// conservative allow list are dropped.
func Sanitize(name string) string {
	folded, _, err := transform.String(stripMarks, name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == ' ' || r == '.' || r == '-' || r == '_' || r == '(' || r == ')' || r == '\'' || r == ',':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}

	cleaned := strings.Join(strings.Fields(b.String()), " ")
	cleaned = strings.Trim(cleaned, " .")
	if cleaned == "" {
		return "untitled"
	}
	return cleaned
}

func expand(format string, tokens map[string]string) string {
	pairs := make([]string, 0, len(tokens)*2)
	for k, v := range tokens {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(format)
}
