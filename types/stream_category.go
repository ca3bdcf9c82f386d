package types

import (
	"fmt"
	"strings"

	"github.com/datazip-inc/resttap/utils"
	"github.com/datazip-inc/resttap/utils/logger"
)

type StreamCategories struct {
	SelectedStreams    []string
	IncrementalStreams []StreamInterface
	StandardStreams    []StreamInterface
}

// IdentifySelectedStreams validates catalog entries against the source streams
// and splits the valid ones by sync mode. Invalid entries are skipped with a
// warning rather than failing the whole sync.
func IdentifySelectedStreams(catalog *Catalog, streams []*Stream) (*StreamCategories, error) {
	categories := &StreamCategories{
		SelectedStreams:    []string{},
		IncrementalStreams: []StreamInterface{},
		StandardStreams:    []StreamInterface{},
	}

	selected := make(map[string]bool, len(catalog.SelectedStreams))
	for _, id := range catalog.SelectedStreams {
		selected[id] = true
	}
	sources := StreamsToMap(streams...)

	_, _ = utils.ArrayContains(catalog.Streams, func(elem *ConfiguredStream) bool {
		if catalog.SelectedStreams != nil && !selected[elem.ID()] {
			logger.Debugf("Skipping stream %s; not in selected streams.", elem.ID())
			return false
		}

		source, found := sources[elem.ID()]
		if !found {
			logger.Warnf("Skipping; Configured Stream %s not found in source", elem.ID())
			return false
		}
		if err := elem.Validate(source); err != nil {
			logger.Warnf("Skipping; Configured Stream %s found invalid due to reason: %s", elem.ID(), err)
			return false
		}
		// source defined properties always win over the catalog copy
		elem.Stream.Parent = source.Parent
		elem.Stream.ReplicationKey = source.ReplicationKey
		elem.Stream.AvailableCursorFields = source.AvailableCursorFields
		if len(elem.Stream.Schema) == 0 {
			elem.Stream.Schema = source.Schema
		}

		categories.SelectedStreams = append(categories.SelectedStreams, elem.ID())
		switch elem.Stream.SyncMode {
		case INCREMENTAL:
			categories.IncrementalStreams = append(categories.IncrementalStreams, elem)
		default:
			categories.StandardStreams = append(categories.StandardStreams, elem)
		}

		return false
	})

	if len(categories.SelectedStreams) == 0 {
		return nil, fmt.Errorf("no valid streams found in catalog")
	}

	logger.Infof("Valid selected streams are %s", strings.Join(categories.SelectedStreams, ", "))
	return categories, nil
}
