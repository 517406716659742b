package rooms

import (
	"crypto/rand"
	"math/big"
)

const (
	roomIDLength = 9
	roomIDChars  = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// generateRoomID returns a random lowercase base-36 room id.
func generateRoomID() string {
	id := make([]byte, roomIDLength)
	max := big.NewInt(int64(len(roomIDChars)))
	for i := range id {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(err)
		}
		id[i] = roomIDChars[n.Int64()]
	}
	return string(id)
}
