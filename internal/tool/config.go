package tool

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AnnotationFile is the YAML shape a host can load to declare
// sideEffectFree (and clientOwned) in bulk rather than setting those
// fields on every Descriptor in Go. Grounded on internal/config's
// pervasive yaml.v3 file-loading convention.
type AnnotationFile struct {
	Tools map[string]Annotation `yaml:"tools"`
}

// Annotation is one tool's policy-relevant metadata.
type Annotation struct {
	SideEffectFree bool `yaml:"sideEffectFree"`
	ClientOwned    bool `yaml:"clientOwned"`
}

// LoadAnnotations parses a YAML annotation file from path.
func LoadAnnotations(path string) (AnnotationFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return AnnotationFile{}, fmt.Errorf("tool: reading annotation file: %w", err)
	}
	var af AnnotationFile
	if err := yaml.Unmarshal(data, &af); err != nil {
		return AnnotationFile{}, fmt.Errorf("tool: parsing annotation file %s: %w", path, err)
	}
	return af, nil
}

// ApplyAnnotations overwrites SideEffectFree/ClientOwned on every
// already-registered descriptor named in af, leaving descriptors with
// no matching entry untouched. Unknown names in af are ignored: a host
// annotation file is allowed to list tools the registry hasn't seen
// yet (e.g. ones registered by a later plugin).
func (r *Registry) ApplyAnnotations(af AnnotationFile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, ann := range af.Tools {
		key := normalizeName(name)
		d, ok := r.tools[key]
		if !ok {
			continue
		}
		d.SideEffectFree = ann.SideEffectFree
		d.ClientOwned = ann.ClientOwned
		r.tools[key] = d
	}
}
