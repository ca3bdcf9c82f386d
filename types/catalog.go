package types

import (
	"github.com/datazip-inc/resttap/utils/logger"
)

// Message is a dto for resttap control output (spec, check, clear-state)
type Message struct {
	Type             MessageType    `json:"type"`
	ConnectionStatus *StatusRow     `json:"connectionStatus,omitempty"`
	State            *State         `json:"state,omitempty"`
	Spec             map[string]any `json:"spec,omitempty"`
}

type StatusRow struct {
	Status  ConnectionStatus `json:"status,omitempty"`
	Message string           `json:"message,omitempty"`
}

type Catalog struct {
	Streams []*ConfiguredStream `json:"streams,omitempty"`
	// ids of streams to sync; nil selects every stream in the catalog
	SelectedStreams []string `json:"selected_streams,omitempty"`
}

func GetWrappedCatalog(streams []*Stream) *Catalog {
	catalog := &Catalog{
		Streams: []*ConfiguredStream{},
	}

	for _, stream := range streams {
		catalog.Streams = append(catalog.Streams, stream.Wrap())
	}

	return catalog
}

// LogCatalog prints the discovered catalog and saves it to the streams path.
func LogCatalog(streams []*Stream) {
	logger.LogCatalog(GetWrappedCatalog(streams))
}
