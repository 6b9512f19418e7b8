package gatework

import "github.com/relaymesh/gatework/id"

// WorkerInstanceID identifies a running Worker pool process.
type WorkerInstanceID = id.ID
