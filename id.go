package jobs

import "github.com/eric2umeh/techignite-jobs/id"

// ID is the primary identifier type for all entities in this module.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
