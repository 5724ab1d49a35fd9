package conflict

import (
	"insp/internal/models"
)

// Detection is the outcome of classifying one batch of client changes
// against the collected server changes.
type Detection struct {
	NonConflicting []models.Change
	Conflicts      []Pair
}

// Pair is a client change and the latest server change it collides with.
type Pair struct {
	Client models.Change
	Server models.Change
}

// Detect classifies each client change independently: a client change
// conflicts when a server change targets the same (entity type, entity
// id) with a timestamp at or after the client's. Only the latest such
// server change matters; anything applied after it would be overwritten
// anyway. Equal timestamps count as conflicts so the server side wins
// ties deterministically.
func Detect(clientChanges, serverChanges []models.Change) Detection {
	type key struct {
		et models.EntityType
		id string
	}

	latest := make(map[key]models.Change, len(serverChanges))
	for _, sc := range serverChanges {
		k := key{sc.EntityType, sc.EntityID}
		if cur, ok := latest[k]; !ok || sc.Timestamp.After(cur.Timestamp) {
			latest[k] = sc
		}
	}

	var d Detection
	for _, cc := range clientChanges {
		sc, ok := latest[key{cc.EntityType, cc.EntityID}]
		if ok && !sc.Timestamp.Before(cc.Timestamp) {
			d.Conflicts = append(d.Conflicts, Pair{Client: cc, Server: sc})
			continue
		}
		d.NonConflicting = append(d.NonConflicting, cc)
	}
	return d
}
