package password

import (
	_ "embed"
	"strings"
	"sync"
)

//go:embed common.txt
var commonTxt string

var embeddedCommon = sync.OnceValue(func() map[string]struct{} {
	return newCommonSet(strings.Split(commonTxt, "\n"))
})

func newCommonSet(list []string) map[string]struct{} {
	set := make(map[string]struct{}, len(list))
	for _, p := range list {
		p = strings.TrimSpace(p)
		if p == "" || strings.HasPrefix(p, "#") {
			continue
		}
		set[fold(p)] = struct{}{}
	}
	return set
}

func (e *Engine) isCommon(password string) bool {
	_, ok := e.common[fold(password)]
	return ok
}
