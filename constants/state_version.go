package constants

// State version constants for backward compatibility.
//
// Version History:
//   - Version 1: Current Version. Cursors are stored per partition key, the
//     empty key holding the unpartitioned stream cursor.
const (
	LatestStateVersion = 1
)
