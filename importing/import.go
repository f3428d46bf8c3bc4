package importing

import (
	"context"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/hauke96/sigolo/v2"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"github.com/paulmach/osm/osmxml"
	"github.com/pkg/errors"

	"roadsnap/graph"
	"roadsnap/index"
	"roadsnap/store"
)

// GraphFileName is the name of the serialized road graph inside an index folder.
const GraphFileName = "graph"

// Options configures an import run.
type Options struct {
	MinResolutionInMeter int
	MaxRegionSearch      int
	Approximation        bool
}

// DefaultOptions returns the options an index gets without explicit configuration.
func DefaultOptions() Options {
	return Options{
		MinResolutionInMeter: 300,
		MaxRegionSearch:      4,
		Approximation:        true,
	}
}

// Import reads the OSM input file, builds the road graph and the location index and
// stores both in the index folder.
func Import(inputFile string, indexBaseFolder string, options Options) error {
	sigolo.Infof("Start import of file %s", inputFile)
	importStartTime := time.Now()

	roadGraph, err := ReadGraphFromFile(inputFile)
	if err != nil {
		return err
	}
	sigolo.Infof("Built road graph with %d nodes and %d edges", roadGraph.Nodes(), roadGraph.Edges())

	err = graph.SaveMemGraph(roadGraph, path.Join(indexBaseFolder, GraphFileName))
	if err != nil {
		return err
	}

	locationIndex := index.NewLocationIndex(roadGraph, store.NewFlatStore(path.Join(indexBaseFolder, index.StoreFileName)))
	if err = locationIndex.SetResolution(options.MinResolutionInMeter); err != nil {
		return err
	}
	if err = locationIndex.SetMaxRegionSearch(options.MaxRegionSearch); err != nil {
		return err
	}
	locationIndex.SetApproximation(options.Approximation)

	if err = locationIndex.PrepareIndex(graph.AllEdges); err != nil {
		return err
	}
	locationIndex.Close()

	sigolo.Infof("Finished import in %s", time.Since(importStartTime))
	return nil
}

// ReadGraphFromFile builds a road graph from an .osm or .pbf file.
func ReadGraphFromFile(inputFile string) (*graph.MemGraph, error) {
	if !strings.HasSuffix(inputFile, ".osm") && !strings.HasSuffix(inputFile, ".pbf") {
		return nil, errors.Errorf("Input file %s must be an .osm or .pbf file", inputFile)
	}

	file, err := os.Open(inputFile)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to open OSM input file %s", inputFile)
	}
	defer file.Close()

	var scanner osm.Scanner
	if strings.HasSuffix(inputFile, ".osm") {
		scanner = osmxml.New(context.Background(), file)
	} else {
		scanner = osmpbf.New(context.Background(), file, 1)
	}
	defer scanner.Close()

	return ReadGraph(scanner)
}

// ReadGraph builds a road graph from a stream of OSM objects. Every highway-tagged way
// contributes edges: the way's endpoints and all nodes shared between several highway
// ways become tower nodes, the nodes in between become pillar points of the connecting
// edge.
func ReadGraph(scanner osm.Scanner) (*graph.MemGraph, error) {
	nodePositions := map[osm.NodeID][2]float64{}
	var highways []*osm.Way

	sigolo.Debugf("Read all OSM objects")
	for scanner.Scan() {
		switch osmObj := scanner.Object().(type) {
		case *osm.Node:
			nodePositions[osmObj.ID] = [2]float64{osmObj.Lat, osmObj.Lon}
		case *osm.Way:
			if osmObj.Tags.Find("highway") == "" {
				continue
			}
			highways = append(highways, osmObj)
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "Unable to scan OSM data")
	}

	// Nodes used by more than one highway (or more than once within one) are junctions.
	usageCount := map[osm.NodeID]int{}
	for _, way := range highways {
		for _, wayNode := range way.Nodes {
			usageCount[wayNode.ID]++
		}
	}

	roadGraph := graph.NewMemGraph()
	towerIds := map[osm.NodeID]int{}

	towerNode := func(id osm.NodeID) (int, error) {
		if tower, ok := towerIds[id]; ok {
			return tower, nil
		}
		position, ok := nodePositions[id]
		if !ok {
			return 0, errors.Errorf("Node %d is not contained in the input data", id)
		}
		tower := roadGraph.AddNode(position[0], position[1])
		towerIds[id] = tower
		return tower, nil
	}

	for _, way := range highways {
		if len(way.Nodes) < 2 {
			sigolo.Warnf("Ignoring way %d with less than two nodes", way.ID)
			continue
		}

		base, err := towerNode(way.Nodes[0].ID)
		if err != nil {
			return nil, errors.Wrapf(err, "Unable to convert way %d", way.ID)
		}

		var pillarLats, pillarLons []float64
		for i := 1; i < len(way.Nodes); i++ {
			wayNode := way.Nodes[i]
			isTower := i == len(way.Nodes)-1 || usageCount[wayNode.ID] > 1

			if !isTower {
				position, ok := nodePositions[wayNode.ID]
				if !ok {
					return nil, errors.Errorf("Way %d references node %d which is not contained in the input data", way.ID, wayNode.ID)
				}
				pillarLats = append(pillarLats, position[0])
				pillarLons = append(pillarLons, position[1])
				continue
			}

			adj, err := towerNode(wayNode.ID)
			if err != nil {
				return nil, errors.Wrapf(err, "Unable to convert way %d", way.ID)
			}
			if _, err = roadGraph.AddEdge(base, adj, pillarLats, pillarLons); err != nil {
				return nil, errors.Wrapf(err, "Unable to convert way %d", way.ID)
			}

			base = adj
			pillarLats = nil
			pillarLons = nil
		}
	}

	return roadGraph, nil
}
