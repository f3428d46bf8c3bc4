package graph

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"path"

	"github.com/hauke96/sigolo/v2"
	"github.com/paulmach/orb"
	"github.com/pkg/errors"
)

const graphFileMagic = "RSGRAPH1"

// SaveMemGraph writes the graph to the given file so later commands can reload it
// without re-reading the original OSM data.
func SaveMemGraph(g *MemGraph, filePath string) error {
	folder := path.Dir(filePath)
	if _, err := os.Stat(folder); os.IsNotExist(err) {
		err = os.MkdirAll(folder, os.ModePerm)
		if err != nil {
			return errors.Wrapf(err, "Unable to create folder %s for graph file", folder)
		}
	}

	file, err := os.Create(filePath)
	if err != nil {
		return errors.Wrapf(err, "Unable to create graph file %s", filePath)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)

	if _, err = writer.Write([]byte(graphFileMagic)); err != nil {
		return errors.Wrapf(err, "Unable to write magic bytes to graph file %s", filePath)
	}
	if err = binary.Write(writer, binary.LittleEndian, int32(g.Nodes())); err != nil {
		return errors.Wrapf(err, "Unable to write node count to graph file %s", filePath)
	}
	if err = binary.Write(writer, binary.LittleEndian, int32(g.Edges())); err != nil {
		return errors.Wrapf(err, "Unable to write edge count to graph file %s", filePath)
	}
	bounds := g.Bounds()
	if err = binary.Write(writer, binary.LittleEndian, []float64{bounds.Min.Lat(), bounds.Min.Lon(), bounds.Max.Lat(), bounds.Max.Lon()}); err != nil {
		return errors.Wrapf(err, "Unable to write bounds to graph file %s", filePath)
	}

	if err = binary.Write(writer, binary.LittleEndian, g.nodeLats); err != nil {
		return errors.Wrapf(err, "Unable to write node latitudes to graph file %s", filePath)
	}
	if err = binary.Write(writer, binary.LittleEndian, g.nodeLons); err != nil {
		return errors.Wrapf(err, "Unable to write node longitudes to graph file %s", filePath)
	}

	for edgeId, edge := range g.edges {
		if err = binary.Write(writer, binary.LittleEndian, int32(edge.base)); err != nil {
			return errors.Wrapf(err, "Unable to write edge %d to graph file %s", edgeId, filePath)
		}
		if err = binary.Write(writer, binary.LittleEndian, int32(edge.adj)); err != nil {
			return errors.Wrapf(err, "Unable to write edge %d to graph file %s", edgeId, filePath)
		}
		if err = binary.Write(writer, binary.LittleEndian, int32(len(edge.pillarLats))); err != nil {
			return errors.Wrapf(err, "Unable to write pillar count of edge %d to graph file %s", edgeId, filePath)
		}
		for i := range edge.pillarLats {
			if err = binary.Write(writer, binary.LittleEndian, edge.pillarLats[i]); err != nil {
				return errors.Wrapf(err, "Unable to write pillar of edge %d to graph file %s", edgeId, filePath)
			}
			if err = binary.Write(writer, binary.LittleEndian, edge.pillarLons[i]); err != nil {
				return errors.Wrapf(err, "Unable to write pillar of edge %d to graph file %s", edgeId, filePath)
			}
		}
	}

	if err = writer.Flush(); err != nil {
		return errors.Wrapf(err, "Unable to flush graph file %s", filePath)
	}

	sigolo.Debugf("Saved graph with %d nodes and %d edges to %s", g.Nodes(), g.Edges(), filePath)
	return nil
}

// LoadMemGraph reads a graph written by SaveMemGraph.
func LoadMemGraph(filePath string) (*MemGraph, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to open graph file %s", filePath)
	}
	defer file.Close()

	reader := bufio.NewReader(file)

	magic := make([]byte, len(graphFileMagic))
	if _, err = io.ReadFull(reader, magic); err != nil {
		return nil, errors.Wrapf(err, "Unable to read magic bytes of graph file %s", filePath)
	}
	if string(magic) != graphFileMagic {
		return nil, errors.Errorf("File %s is not a graph file (magic bytes %q)", filePath, magic)
	}

	var numNodes, numEdges int32
	if err = binary.Read(reader, binary.LittleEndian, &numNodes); err != nil {
		return nil, errors.Wrapf(err, "Unable to read node count of graph file %s", filePath)
	}
	if err = binary.Read(reader, binary.LittleEndian, &numEdges); err != nil {
		return nil, errors.Wrapf(err, "Unable to read edge count of graph file %s", filePath)
	}
	if numNodes < 0 || numEdges < 0 {
		return nil, errors.Errorf("Graph file %s has an invalid geometry (nodes=%d, edges=%d)", filePath, numNodes, numEdges)
	}
	boundValues := make([]float64, 4)
	if err = binary.Read(reader, binary.LittleEndian, boundValues); err != nil {
		return nil, errors.Wrapf(err, "Unable to read bounds of graph file %s", filePath)
	}

	lats := make([]float64, numNodes)
	lons := make([]float64, numNodes)
	if err = binary.Read(reader, binary.LittleEndian, lats); err != nil {
		return nil, errors.Wrapf(err, "Unable to read node latitudes of graph file %s", filePath)
	}
	if err = binary.Read(reader, binary.LittleEndian, lons); err != nil {
		return nil, errors.Wrapf(err, "Unable to read node longitudes of graph file %s", filePath)
	}

	g := NewMemGraph()
	for node := int32(0); node < numNodes; node++ {
		g.AddNode(lats[node], lons[node])
	}

	for edgeId := int32(0); edgeId < numEdges; edgeId++ {
		var base, adj, numPillars int32
		if err = binary.Read(reader, binary.LittleEndian, &base); err != nil {
			return nil, errors.Wrapf(err, "Unable to read edge %d of graph file %s", edgeId, filePath)
		}
		if err = binary.Read(reader, binary.LittleEndian, &adj); err != nil {
			return nil, errors.Wrapf(err, "Unable to read edge %d of graph file %s", edgeId, filePath)
		}
		if err = binary.Read(reader, binary.LittleEndian, &numPillars); err != nil {
			return nil, errors.Wrapf(err, "Unable to read pillar count of edge %d of graph file %s", edgeId, filePath)
		}
		if numPillars < 0 {
			return nil, errors.Errorf("Edge %d of graph file %s has a negative pillar count", edgeId, filePath)
		}

		var pillarLats, pillarLons []float64
		for i := int32(0); i < numPillars; i++ {
			var lat, lon float64
			if err = binary.Read(reader, binary.LittleEndian, &lat); err != nil {
				return nil, errors.Wrapf(err, "Unable to read pillar of edge %d of graph file %s", edgeId, filePath)
			}
			if err = binary.Read(reader, binary.LittleEndian, &lon); err != nil {
				return nil, errors.Wrapf(err, "Unable to read pillar of edge %d of graph file %s", edgeId, filePath)
			}
			pillarLats = append(pillarLats, lat)
			pillarLons = append(pillarLons, lon)
		}

		if _, err = g.AddEdge(int(base), int(adj), pillarLats, pillarLons); err != nil {
			return nil, errors.Wrapf(err, "Unable to rebuild edge %d from graph file %s", edgeId, filePath)
		}
	}
	g.SetBounds(orb.Bound{Min: orb.Point{boundValues[1], boundValues[0]}, Max: orb.Point{boundValues[3], boundValues[2]}})

	sigolo.Debugf("Loaded graph with %d nodes and %d edges from %s", g.Nodes(), g.Edges(), filePath)
	return g, nil
}
