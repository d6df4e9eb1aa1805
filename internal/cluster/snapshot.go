package cluster

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"github.com/objectfs/s3harness/pkg/errors"
)

// ownershipPattern matches one {'node@ip',count} tuple of the Erlang-formatted
// ring_ownership stat.
var ownershipPattern = regexp.MustCompile(`\{'(riak@\d+\.\d+\.\d+\.\d+)',(\d+)\}`)

// RingSnapshot is one sample of the cluster's partition ownership.
type RingSnapshot struct {
	NumPartitions int            `json:"ring_num_partitions"`
	Ownership     map[string]int `json:"ring_ownership"`
}

// Splits returns the per-node partition counts ordered by node name.
func (s RingSnapshot) Splits() []int {
	nodes := make([]string, 0, len(s.Ownership))
	for n := range s.Ownership {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)

	splits := make([]int, 0, len(nodes))
	for _, n := range nodes {
		splits = append(splits, s.Ownership[n])
	}
	return splits
}

type rawStats struct {
	NumPartitions *int            `json:"ring_num_partitions"`
	Ownership     json.RawMessage `json:"ring_ownership"`
}

// ParseStats decodes a cluster stats document. ring_ownership may be the
// Erlang term string "[{'riak@10.0.0.2',16},...]" or a JSON object of counts.
func ParseStats(data []byte) (RingSnapshot, error) {
	var raw rawStats
	if err := json.Unmarshal(data, &raw); err != nil {
		return RingSnapshot{}, statusError("decode stats", err)
	}
	if raw.NumPartitions == nil {
		return RingSnapshot{}, statusError("decode stats", fmt.Errorf("ring_num_partitions missing"))
	}

	ownership, err := parseOwnership(raw.Ownership)
	if err != nil {
		return RingSnapshot{}, statusError("decode ring_ownership", err)
	}
	return RingSnapshot{NumPartitions: *raw.NumPartitions, Ownership: ownership}, nil
}

func parseOwnership(raw json.RawMessage) (map[string]int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return map[string]int{}, nil
	}

	var term string
	if err := json.Unmarshal(raw, &term); err == nil {
		return parseOwnershipTerm(term)
	}

	var counts map[string]int
	if err := json.Unmarshal(raw, &counts); err != nil {
		return nil, fmt.Errorf("unsupported ownership format: %w", err)
	}
	if counts == nil {
		counts = map[string]int{}
	}
	return counts, nil
}

func parseOwnershipTerm(term string) (map[string]int, error) {
	ownership := make(map[string]int)
	for _, m := range ownershipPattern.FindAllStringSubmatch(term, -1) {
		n, err := strconv.Atoi(m[2])
		if err != nil {
			return nil, err
		}
		ownership[m[1]] = n
	}
	return ownership, nil
}

func statusError(op string, err error) error {
	return errors.NewError(errors.ErrCodeClusterStatus, "invalid cluster status").
		WithComponent("cluster").
		WithOperation(op).
		WithCause(err)
}
