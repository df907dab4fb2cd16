package symbolication

import (
	"encoding/json"
	"strings"
)

// Mapping is one decoded tuple: a generated position and, when present, the
// original source index/line/column and name index it maps to. Lines are
// stored 1-based for the generated side and 0-based for the original side.
type Mapping struct {
	GenLine int
	GenCol  int
	Src     *int
	SrcLine *int
	SrcCol  *int
	Name    *int
}

// SourceMap is a parsed Source Map v3 document.
type SourceMap struct {
	Version  int
	File     string
	Sources  []string
	Names    []string
	Mappings []Mapping
}

// OriginalPosition is a resolved original source location. Line is 1-based,
// Column 0-based.
type OriginalPosition struct {
	Source string
	Line   int
	Column int
	Name   string
}

type rawSourceMap struct {
	Version  int      `json:"version"`
	File     string   `json:"file"`
	Sources  []string `json:"sources"`
	Names    []string `json:"names"`
	Mappings string   `json:"mappings"`
}

// ParseSourceMap decodes a JSON source map document. The mappings string is
// split on ";" into generated lines and on "," into segments; generated
// columns are deltas that reset at each new line, while source index, source
// line, source column and name index are cumulative across the whole
// document. A one-value segment maps to nothing. An undecodable segment
// aborts that line but keeps all mappings decoded so far.
func ParseSourceMap(data []byte) (*SourceMap, error) {
	var raw rawSourceMap
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if raw.Version == 0 {
		raw.Version = 3
	}

	sm := &SourceMap{
		Version: raw.Version,
		File:    raw.File,
		Sources: raw.Sources,
		Names:   raw.Names,
	}

	genLine := 0
	prevSrc, prevSrcLine, prevSrcCol, prevName := 0, 0, 0, 0
	for _, line := range strings.Split(raw.Mappings, ";") {
		genLine++
		prevGenCol := 0
		for _, seg := range strings.Split(line, ",") {
			if seg == "" {
				continue
			}
			vals := vlqDecode(seg)
			if len(vals) == 0 {
				break
			}
			genCol := prevGenCol + vals[0]
			prevGenCol = genCol
			if len(vals) < 4 {
				sm.Mappings = append(sm.Mappings, Mapping{GenLine: genLine, GenCol: genCol})
				continue
			}
			prevSrc += vals[1]
			prevSrcLine += vals[2]
			prevSrcCol += vals[3]
			src, srcLine, srcCol := prevSrc, prevSrcLine, prevSrcCol
			m := Mapping{GenLine: genLine, GenCol: genCol, Src: &src, SrcLine: &srcLine, SrcCol: &srcCol}
			if len(vals) >= 5 {
				prevName += vals[4]
				name := prevName
				m.Name = &name
			}
			sm.Mappings = append(sm.Mappings, m)
		}
	}
	return sm, nil
}

// OriginalPositionFor resolves a generated position (1-based line, 0-based
// column) to its original source location. Among mappings on the same
// generated line it picks the greatest generated column <= the target,
// scanning in insertion order so the last such mapping wins ties. Returns
// false when no mapping covers the position or the best mapping carries no
// source reference.
func (sm *SourceMap) OriginalPositionFor(genLine, genCol int) (OriginalPosition, bool) {
	var best *Mapping
	for i := range sm.Mappings {
		m := &sm.Mappings[i]
		if m.GenLine != genLine {
			continue
		}
		if m.GenCol <= genCol && (best == nil || m.GenCol >= best.GenCol) {
			best = m
		}
	}
	if best == nil || best.Src == nil {
		return OriginalPosition{}, false
	}

	pos := OriginalPosition{Column: deref(best.SrcCol), Line: deref(best.SrcLine) + 1}
	if *best.Src >= 0 && *best.Src < len(sm.Sources) {
		pos.Source = sm.Sources[*best.Src]
	}
	if best.Name != nil && *best.Name >= 0 && *best.Name < len(sm.Names) {
		pos.Name = sm.Names[*best.Name]
	}
	return pos, true
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
