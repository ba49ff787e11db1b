// Package hierarchy builds the positioned forest of structural concepts for a
// filing and assigns each node its positional identity.
package hierarchy

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ratio-cli/internal/model"
)

// MaxDepth is the deepest level reported without a structural issue.
const MaxDepth = 15

// Issue kinds recorded while building a forest.
const (
	IssueOrphanParent      = "orphan_parent"
	IssueCycle             = "cycle"
	IssueDuplicateSourceID = "duplicate_source_id"
	IssueDuplicateID       = "duplicate_positional_id"
	IssueUnknownStatement  = "unknown_statement"
	IssueTooDeep           = "depth_exceeded"
)

// Forest is the arena of every structural node of one filing, in pre-order.
type Forest struct {
	FilingID string
	Nodes    []model.StructuralConcept
	Roots    []int
	Issues   []model.StructuralIssue

	index map[string]int
}

// Build constructs the forest for a filing. It never fails: inconsistent
// upstream structure is recorded in Issues and degraded gracefully.
func Build(filingID string, statements []model.Statement) *Forest {
	f := &Forest{
		FilingID: filingID,
		index:    make(map[string]int),
	}
	log := zap.L().With(zap.String("filing_id", filingID))

	// Sequence counters are shared by every statement with the same code so
	// that positional identities stay unique per filing.
	seq := make(map[model.StatementCode]map[int]int)
	for _, st := range statements {
		code, known := statementCode(st)
		if !known {
			f.issue(log, IssueUnknownStatement, code, "", fmt.Sprintf("statement %q treated as other", st.Type+string(st.Code)))
		}
		if seq[code] == nil {
			seq[code] = make(map[int]int)
		}
		f.buildStatement(log, code, st.Facts, seq[code])
	}
	return f
}

func statementCode(st model.Statement) (model.StatementCode, bool) {
	if st.Code.Valid() {
		return st.Code, true
	}
	if st.Code != "" {
		if c, ok := model.ParseStatementCode(string(st.Code)); ok {
			return c, true
		}
	}
	return model.ParseStatementCode(st.Type)
}

func (f *Forest) buildStatement(log *zap.Logger, code model.StatementCode, facts []model.StructuralFact, seq map[int]int) {
	n := len(facts)
	byID := make(map[string]int, n)
	for i, fact := range facts {
		if fact.ID == "" {
			continue
		}
		if _, dup := byID[fact.ID]; dup {
			f.issue(log, IssueDuplicateSourceID, code, fact.ID, "fact id repeated; children attach to the first occurrence")
			continue
		}
		byID[fact.ID] = i
	}

	parent := make([]int, n)
	children := make([][]int, n)
	for i, fact := range facts {
		parent[i] = -1
		if fact.ParentID == "" {
			continue
		}
		p, ok := byID[fact.ParentID]
		switch {
		case !ok:
			f.issue(log, IssueOrphanParent, code, fact.ID, fmt.Sprintf("parent %q not found; treated as root", fact.ParentID))
		case p == i:
			f.issue(log, IssueCycle, code, fact.ID, "fact is its own parent; treated as root")
		default:
			parent[i] = p
			children[p] = append(children[p], i)
		}
	}

	byOrder := func(idx []int) {
		sort.SliceStable(idx, func(a, b int) bool {
			return facts[idx[a]].Order < facts[idx[b]].Order
		})
	}
	for i := range children {
		byOrder(children[i])
	}

	var roots []int
	for i := range facts {
		if parent[i] == -1 {
			roots = append(roots, i)
		}
	}
	byOrder(roots)

	visited := make([]bool, n)
	for k, r := range roots {
		f.traverse(log, code, facts, children, visited, seq, r, k+1)
	}

	// Anything still unvisited sits on or hangs off a cycle. Break each cycle
	// at its first member in input order; nodes hanging off it keep their parents.
	for i := range facts {
		if visited[i] {
			continue
		}
		m := cycleHead(parent, i)
		f.issue(log, IssueCycle, code, facts[m].ID, fmt.Sprintf("parent chain of %q loops; re-rooted", facts[m].Concept))
		if p := parent[m]; p >= 0 {
			children[p] = removeIndex(children[p], m)
			parent[m] = -1
		}
		roots = append(roots, m)
		f.traverse(log, code, facts, children, visited, seq, m, len(roots))
	}
}

// cycleHead follows parent links from start until an index repeats and
// returns the lowest index on the loop it ends in.
func cycleHead(parent []int, start int) int {
	pos := make(map[int]int)
	var path []int
	for j := start; j >= 0; j = parent[j] {
		if k, ok := pos[j]; ok {
			head := path[k]
			for _, m := range path[k:] {
				head = min(head, m)
			}
			return head
		}
		pos[j] = len(path)
		path = append(path, j)
	}
	return start
}

type frame struct {
	fact    int
	parent  int
	depth   int
	sibling int
}

func (f *Forest) traverse(log *zap.Logger, code model.StatementCode, facts []model.StructuralFact, children [][]int, visited []bool, seq map[int]int, root, sibling int) {
	f.Roots = append(f.Roots, len(f.Nodes))
	stack := []frame{{fact: root, parent: -1, depth: 0, sibling: sibling}}
	for len(stack) > 0 {
		fr := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[fr.fact] {
			continue
		}
		visited[fr.fact] = true

		fact := facts[fr.fact]
		seq[fr.depth]++
		node := model.StructuralConcept{
			FilingID:     f.FilingID,
			PositionalID: PositionalID(code, fr.depth, seq[fr.depth], fact.ContextRef),
			SourceID:     fact.ID,
			Statement:    code,
			Concept:      fact.Concept,
			LocalName:    model.LocalName(fact.Concept),
			ContextRef:   fact.ContextRef,
			Depth:        fr.depth,
			SiblingIndex: fr.sibling,
			Period:       fact.Period,
			Dimensions:   fact.Dimensions,
			Abstract:     fact.Abstract,
			Label:        fact.Label,
			Parent:       fr.parent,
		}
		if !fact.Nil && fact.Value != nil {
			v := *fact.Value
			node.Value = &v
		}
		if fr.depth > MaxDepth {
			f.issue(log, IssueTooDeep, code, fact.ID, fmt.Sprintf("depth %d exceeds %d", fr.depth, MaxDepth))
		}

		idx := len(f.Nodes)
		if fr.parent >= 0 {
			p := &f.Nodes[fr.parent]
			node.ParentPositionalID = p.PositionalID
			p.Children = append(p.Children, idx)
		}
		f.Nodes = append(f.Nodes, node)
		if _, dup := f.index[node.PositionalID]; dup {
			f.issue(log, IssueDuplicateID, code, fact.ID, fmt.Sprintf("positional id %s already assigned; first occurrence kept", node.PositionalID))
		} else {
			f.index[node.PositionalID] = idx
		}

		// Push in reverse so the lowest order is visited first.
		kids := children[fr.fact]
		for k := len(kids) - 1; k >= 0; k-- {
			if visited[kids[k]] {
				continue
			}
			stack = append(stack, frame{fact: kids[k], parent: idx, depth: fr.depth + 1, sibling: k + 1})
		}
	}
}

func (f *Forest) issue(log *zap.Logger, kind string, code model.StatementCode, sourceID, detail string) {
	log.Warn("hierarchy: structural inconsistency",
		zap.String("kind", kind),
		zap.String("statement", string(code)),
		zap.String("source_id", sourceID),
		zap.String("detail", detail),
	)
	f.Issues = append(f.Issues, model.StructuralIssue{
		Kind:      kind,
		Statement: code,
		SourceID:  sourceID,
		Detail:    detail,
	})
}

func removeIndex(s []int, v int) []int {
	out := s[:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

// Len returns the number of nodes.
func (f *Forest) Len() int { return len(f.Nodes) }

// Node returns the node at arena index i.
func (f *Forest) Node(i int) *model.StructuralConcept { return &f.Nodes[i] }

// Lookup finds a node by positional identity.
func (f *Forest) Lookup(positionalID string) (*model.StructuralConcept, bool) {
	i, ok := f.index[positionalID]
	if !ok {
		return nil, false
	}
	return &f.Nodes[i], true
}

// Parent returns the parent of node i, if any.
func (f *Forest) Parent(i int) (*model.StructuralConcept, bool) {
	p := f.Nodes[i].Parent
	if p < 0 {
		return nil, false
	}
	return &f.Nodes[p], true
}

// Ancestors calls fn for each ancestor of node i, nearest first, until fn
// returns false.
func (f *Forest) Ancestors(i int, fn func(*model.StructuralConcept) bool) {
	for p := f.Nodes[i].Parent; p >= 0; p = f.Nodes[p].Parent {
		if !fn(&f.Nodes[p]) {
			return
		}
	}
}

// LocalNames returns the distinct local concept names in the filing, sorted.
func (f *Forest) LocalNames() []string {
	seen := make(map[string]bool, len(f.Nodes))
	var names []string
	for i := range f.Nodes {
		n := f.Nodes[i].LocalName
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

// NormalizeContextRef strips separators from an upstream context reference.
func NormalizeContextRef(ref string) string {
	return strings.NewReplacer("-", "", "_", "").Replace(ref)
}

// PositionalID formats a positional identity. Depth and sequence are
// zero-padded so identities sort lexically in document order.
func PositionalID(code model.StatementCode, depth, seq int, contextRef string) string {
	id := fmt.Sprintf("%s-%03d-%03d", code, depth, seq)
	if ctx := NormalizeContextRef(contextRef); ctx != "" {
		id += "-" + ctx
	}
	return id
}

// Position is a parsed positional identity.
type Position struct {
	Statement model.StatementCode
	Depth     int
	Sequence  int
	Context   string
}

// ParsePositionalID splits a positional identity into its parts.
func ParsePositionalID(id string) (Position, error) {
	parts := strings.SplitN(id, "-", 4)
	if len(parts) < 3 {
		return Position{}, eris.Errorf("hierarchy: malformed positional id %q", id)
	}
	code := model.StatementCode(parts[0])
	if !code.Valid() {
		return Position{}, eris.Errorf("hierarchy: unknown statement code in %q", id)
	}
	depth, err := strconv.Atoi(parts[1])
	if err != nil || len(parts[1]) != 3 {
		return Position{}, eris.Errorf("hierarchy: bad depth in %q", id)
	}
	seqNum, err := strconv.Atoi(parts[2])
	if err != nil || len(parts[2]) < 3 {
		return Position{}, eris.Errorf("hierarchy: bad sequence in %q", id)
	}
	p := Position{Statement: code, Depth: depth, Sequence: seqNum}
	if len(parts) == 4 {
		p.Context = parts[3]
	}
	return p, nil
}
