package scaffold

import (
	"bytes"
	"strings"

	"github.com/ddddddO/gtree"

	"github.com/mpataki/foundry/internal/models"
)

// Tree renders files as a directory tree under rootName.
func Tree(rootName string, files models.FileSet) (string, error) {
	root := gtree.NewRoot(rootName)
	nodes := map[string]*gtree.Node{"": root}

	for _, p := range files.Paths() {
		parent := ""
		segs := strings.Split(p, "/")
		for i, seg := range segs {
			key := strings.Join(segs[:i+1], "/")
			if _, ok := nodes[key]; !ok {
				nodes[key] = nodes[parent].Add(seg)
			}
			parent = key
		}
	}

	var buf bytes.Buffer
	if err := gtree.OutputProgrammably(&buf, root); err != nil {
		return "", err
	}
	return buf.String(), nil
}
