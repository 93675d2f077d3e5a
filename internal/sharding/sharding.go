package sharding

import (
	"fmt"
	"hash/crc32"
	"strings"
)

// ShardCount is the fixed number of recipient partitions.
const ShardCount = 1024

// MessagePrefix is the subject root for addressed market messages.
const MessagePrefix = "mp.msg"

// GetShardID maps a recipient address onto a partition.
func GetShardID(address string) int {
	checksum := crc32.ChecksumIEEE([]byte(address))
	return int(checksum % ShardCount)
}

// MessageSubject returns the subject a message for address is published on.
// Format: mp.msg.{shard_id}.{address}
func MessageSubject(address string) string {
	return fmt.Sprintf("%s.%d.%s", MessagePrefix, GetShardID(address), address)
}

// AddressFromSubject recovers the recipient address from a message subject.
func AddressFromSubject(subject string) (string, bool) {
	parts := strings.SplitN(subject, ".", 4)
	if len(parts) != 4 || parts[0]+"."+parts[1] != MessagePrefix || parts[3] == "" {
		return "", false
	}
	return parts[3], true
}
