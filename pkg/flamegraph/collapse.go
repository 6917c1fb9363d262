// Package flamegraph turns recorded calls into folded stacks and SVG flame
// graphs.
package flamegraph

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/danpilch/callprof/pkg/record"
)

// FoldSeparator joins frames of a folded stack, outermost first.
const FoldSeparator = ";"

// Fold counts identical call stacks. Keys are folded stacks, root frame
// first, the way flame graph tooling expects them.
func Fold(recs []record.Record) map[string]int {
	stacks := make(map[string]int)
	for _, r := range recs {
		if len(r.Stack) == 0 {
			continue
		}
		stacks[foldKey(r.Stack)]++
	}
	return stacks
}

func foldKey(stack []string) string {
	// Records keep the innermost frame first.
	rev := make([]string, len(stack))
	for i, f := range stack {
		rev[len(stack)-1-i] = strings.ReplaceAll(f, FoldSeparator, ":")
	}
	return strings.Join(rev, FoldSeparator)
}

// WriteFolded writes "root;...;leaf count" lines sorted by stack.
func WriteFolded(w io.Writer, stacks map[string]int) error {
	keys := make([]string, 0, len(stacks))
	for k := range stacks {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if _, err := fmt.Fprintf(w, "%s %d\n", k, stacks[k]); err != nil {
			return err
		}
	}
	return nil
}
