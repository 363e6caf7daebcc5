// Package browse implements on-demand address-space discovery: given
// a client and a starting node, recursively walk Object/View nodes
// and report every Variable found with its resolved data type. It is
// adapted from the teacher's own address-space walker.
package browse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/id"
	"github.com/gopcua/opcua/ua"

	"github.com/scadaworks/opcua-runtime/internal/errs"
)

// VariableInfo is one discovered Variable node.
type VariableInfo struct {
	NodeID        string
	DisplayName   string
	DataType      string // resolved human-readable name, e.g. "Double"
}

// ProgressFunc is invoked periodically during a long browse so a
// caller (the NATS bridge, a CLI spinner) can report liveness.
type ProgressFunc func(discovered int, currentNodeID string)

// ObjectsFolder is ns=0;i=85, the standard root for a server's
// instance address space.
const ObjectsFolder = "i=85"

// DefaultMaxDepth bounds runaway recursion on a pathological address
// space.
const DefaultMaxDepth = 10

// Walk recursively browses client's address space from startNodeID
// (ObjectsFolder if empty) down to maxDepth (DefaultMaxDepth if <= 0),
// returning every Variable node encountered.
func Walk(ctx context.Context, client *opcua.Client, startNodeID string, maxDepth int, progress ProgressFunc) ([]VariableInfo, error) {
	if client == nil {
		return nil, errs.New(errs.NotConnected, "browse requires a live client")
	}
	if startNodeID == "" {
		startNodeID = ObjectsFolder
	}
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	w := &walker{
		ctx:           ctx,
		client:        client,
		maxDepth:      maxDepth,
		visited:       make(map[string]bool),
		dataTypeCache: make(map[string]string),
		progress:      progress,
		lastProgress:  time.Now(),
	}
	if err := w.browse(startNodeID, 0); err != nil {
		return nil, err
	}
	return w.discovered, nil
}

type walker struct {
	ctx           context.Context
	client        *opcua.Client
	maxDepth      int
	visited       map[string]bool
	dataTypeCache map[string]string
	progress      ProgressFunc
	lastProgress  time.Time
	discovered    []VariableInfo
}

func (w *walker) browse(nodeID string, depth int) error {
	if depth > w.maxDepth || w.visited[nodeID] {
		return nil
	}
	w.visited[nodeID] = true

	if w.progress != nil && time.Since(w.lastProgress) > 5*time.Second {
		w.lastProgress = time.Now()
		w.progress(len(w.discovered), nodeID)
	}

	parsed, err := ua.ParseNodeID(nodeID)
	if err != nil {
		return nil
	}

	refs, err := w.browseRefs(parsed)
	if err != nil {
		return nil
	}

	for _, ref := range refs {
		childID := ref.NodeID.NodeID.String()

		if ref.NodeClass == ua.NodeClassVariable {
			w.discovered = append(w.discovered, w.describeVariable(ref, childID))
		}
		if ref.NodeClass == ua.NodeClassObject || ref.NodeClass == ua.NodeClassView {
			if err := w.browse(childID, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *walker) browseRefs(nodeID *ua.NodeID) ([]*ua.ReferenceDescription, error) {
	resp, err := w.client.Browse(w.ctx, &ua.BrowseRequest{
		NodesToBrowse: []*ua.BrowseDescription{{
			NodeID:          nodeID,
			BrowseDirection: ua.BrowseDirectionForward,
			IncludeSubtypes: true,
			ReferenceTypeID: ua.NewNumericNodeID(0, id.HierarchicalReferences),
			ResultMask:      uint32(ua.BrowseResultMaskAll),
		}},
	})
	if err != nil || len(resp.Results) == 0 {
		return nil, err
	}

	result := resp.Results[0]
	refs := result.References
	for len(result.ContinuationPoint) > 0 {
		next, err := w.client.BrowseNext(w.ctx, &ua.BrowseNextRequest{ContinuationPoints: [][]byte{result.ContinuationPoint}})
		if err != nil || len(next.Results) == 0 {
			break
		}
		result = next.Results[0]
		refs = append(refs, result.References...)
	}
	return refs, nil
}

func (w *walker) describeVariable(ref *ua.ReferenceDescription, nodeID string) VariableInfo {
	displayName := nodeID
	if ref.DisplayName != nil && ref.DisplayName.Text != "" {
		displayName = ref.DisplayName.Text
	} else if ref.BrowseName != nil && ref.BrowseName.Name != "" {
		displayName = ref.BrowseName.Name
	}

	return VariableInfo{
		NodeID:      nodeID,
		DisplayName: displayName,
		DataType:    w.resolveDataType(ref.NodeID.NodeID),
	}
}

func (w *walker) resolveDataType(nodeID *ua.NodeID) string {
	resp, err := w.client.Read(w.ctx, &ua.ReadRequest{
		NodesToRead: []*ua.ReadValueID{{NodeID: nodeID, AttributeID: ua.AttributeIDDataType}},
	})
	if err != nil || len(resp.Results) == 0 || resp.Results[0].Status != ua.StatusOK || resp.Results[0].Value == nil {
		return "Unknown"
	}

	dtID, ok := resp.Results[0].Value.Value().(*ua.NodeID)
	if !ok {
		return fmt.Sprintf("%v", resp.Results[0].Value.Value())
	}
	key := strings.Replace(dtID.String(), "ns=0;", "", 1)
	if name, ok := builtinDataTypeNames[key]; ok {
		return name
	}
	if name, ok := w.dataTypeCache[key]; ok {
		return name
	}

	name := w.resolveBrowseName(dtID, key)
	w.dataTypeCache[key] = name
	return name
}

func (w *walker) resolveBrowseName(nodeID *ua.NodeID, fallback string) string {
	resp, err := w.client.Read(w.ctx, &ua.ReadRequest{
		NodesToRead: []*ua.ReadValueID{{NodeID: nodeID, AttributeID: ua.AttributeIDBrowseName}},
	})
	if err != nil || len(resp.Results) == 0 || resp.Results[0].Status != ua.StatusOK {
		return fallback
	}
	if qn, ok := resp.Results[0].Value.Value().(*ua.QualifiedName); ok && qn.Name != "" {
		return qn.Name
	}
	return fallback
}

// builtinDataTypeNames maps the OPC UA standard scalar data type node
// ids (ns=0) to their human-readable names (Part 6, §5.1.2).
var builtinDataTypeNames = map[string]string{
	"i=1": "Boolean", "i=2": "SByte", "i=3": "Byte",
	"i=4": "Int16", "i=5": "UInt16", "i=6": "Int32", "i=7": "UInt32",
	"i=8": "Int64", "i=9": "UInt64", "i=10": "Float", "i=11": "Double",
	"i=12": "String", "i=13": "DateTime", "i=14": "Guid", "i=15": "ByteString",
	"i=16": "XmlElement", "i=17": "NodeId", "i=19": "StatusCode",
	"i=20": "QualifiedName", "i=21": "LocalizedText", "i=22": "ExtensionObject",
	"i=26": "Number",
}
