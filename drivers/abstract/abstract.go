package abstract

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/datazip-inc/resttap/constants"
	"github.com/datazip-inc/resttap/state"
	"github.com/datazip-inc/resttap/types"
	"github.com/datazip-inc/resttap/utils"
	"github.com/datazip-inc/resttap/utils/logger"
	"github.com/spf13/viper"
)

type AbstractDriver struct { //nolint:gosec,revive
	driver DriverInterface
	store  state.Store
}

func NewAbstractDriver(_ context.Context, driver DriverInterface) *AbstractDriver {
	return &AbstractDriver{
		driver: driver,
	}
}

func (a *AbstractDriver) SetupState(store state.Store) {
	a.store = store
}

func (a *AbstractDriver) GetConfigRef() Config {
	return a.driver.GetConfigRef()
}

func (a *AbstractDriver) Spec() any {
	return a.driver.Spec()
}

func (a *AbstractDriver) Type() string {
	return a.driver.Type()
}

func (a *AbstractDriver) Setup(ctx context.Context) error {
	return a.driver.Setup(ctx)
}

func (a *AbstractDriver) Check(ctx context.Context) error {
	return a.driver.Check(ctx)
}

func (a *AbstractDriver) maxConnections() int {
	if override := viper.GetInt(constants.MaxConnections); override > 0 {
		return override
	}
	return utils.Ternary(a.driver.MaxConnections() > 0, a.driver.MaxConnections(), constants.DefaultThreadCount).(int)
}

func (a *AbstractDriver) Discover(ctx context.Context) ([]*types.Stream, error) {
	names, err := a.driver.GetStreamNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get stream names: %s", err)
	}

	var streamMap sync.Map
	err = utils.ConcurrentCollect(ctx, names, a.maxConnections(), func(ctx context.Context, _ int, name string) error {
		stream, err := a.driver.ProduceSchema(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to produce schema for stream %s: %s", name, err)
		}
		streamMap.Store(stream.ID(), stream)
		return nil
	})
	if err != nil {
		return nil, err
	}

	var streams []*types.Stream
	streamMap.Range(func(_, value any) bool {
		stream, _ := value.(*types.Stream)
		// incremental is preferred whenever the stream has a replication key
		if stream.SupportedSyncModes.Exists(types.INCREMENTAL) {
			stream.SyncMode = types.INCREMENTAL
		} else {
			stream.SyncMode = types.FULLREFRESH
		}
		streams = append(streams, stream)
		return true
	})
	sort.Slice(streams, func(i, j int) bool {
		return streams[i].ID() < streams[j].ID()
	})

	logger.Infof("discovered %d streams", len(streams))
	return streams, nil
}

// generateThreadID creates a unique thread ID for a stream partition
func generateThreadID(streamID string, partition types.Context) string {
	if key := partition.Key(); key != "" {
		return fmt.Sprintf("%s_%s_%s", streamID, key, utils.ULID())
	}
	return fmt.Sprintf("%s_%s", streamID, utils.ULID())
}
