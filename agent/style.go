package agent

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/gorilla/css/scanner"

	"github.com/hazyhaar/booster/dom"
)

// boostAttr marks elements the agent injected.
const boostAttr = "data-boost"

var scaleRe = regexp.MustCompile(`scale\(\s*([-+]?(?:\d*\.)?\d+(?:[eE][-+]?\d+)?)\s*\)`)

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func scaleTransform(s float64) string {
	return "scale(" + strconv.FormatFloat(s, 'f', -1, 64) + ")"
}

// parseScale extracts the factor from a transform value; anything it
// cannot read is 1.0.
func parseScale(transform string) float64 {
	m := scaleRe.FindStringSubmatch(transform)
	if m == nil {
		return 1.0
	}
	f, err := strconv.ParseFloat(m[1], 64)
	if err != nil || !finite(f) {
		return 1.0
	}
	return f
}

func fontRule(family string) string {
	return fmt.Sprintf("* { font-family: %s !important; }", family)
}

// safeValue reports whether v is a single CSS component value that cannot
// escape the declaration it is placed in.
func safeValue(v string) bool {
	s := scanner.New(v)
	for {
		tok := s.Next()
		switch tok.Type {
		case scanner.TokenEOF:
			return true
		case scanner.TokenError, scanner.TokenAtKeyword, scanner.TokenURI,
			scanner.TokenComment, scanner.TokenCDO, scanner.TokenCDC, scanner.TokenBOM:
			return false
		case scanner.TokenFunction:
			fn := strings.ToLower(tok.Value)
			if fn == "url(" || fn == "expression(" {
				return false
			}
		case scanner.TokenChar:
			switch tok.Value {
			case "{", "}", ";", "!", "<", ">", "\\":
				return false
			}
		}
	}
}

// injectStyle appends a <style> element holding css to the head.
func (a *Agent) injectStyle(kind, css string) (dom.Element, error) {
	head := a.doc.Head()
	if head == nil {
		return nil, fmt.Errorf("agent: document has no head")
	}
	el, err := a.doc.CreateElement("style")
	if err != nil {
		return nil, err
	}
	if err := el.SetAttribute(boostAttr, kind); err != nil {
		return nil, err
	}
	if err := el.SetTextContent(css); err != nil {
		return nil, err
	}
	if err := head.AppendChild(el); err != nil {
		return nil, err
	}
	return el, nil
}
