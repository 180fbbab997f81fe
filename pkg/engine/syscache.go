package engine

import (
	"strings"

	"github.com/pg-sharding/colexec/pkg/models/execerror"
)

var s_methods = map[string]GroupByMethod{}

func init() {
	for m, name := range methodNames {
		s_methods[name] = m
	}
}

// SearchSysCacheMethod resolves an aggregation method by name.
func SearchSysCacheMethod(name string) (GroupByMethod, error) {
	if m, ok := s_methods[strings.ToLower(name)]; ok {
		return m, nil
	}
	return 0, execerror.Newf(execerror.EXEC_INVALID_OPERATION, "aggregation method %q not supported", name)
}
