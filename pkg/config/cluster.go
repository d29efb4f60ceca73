package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ClusterFile is the optional YAML document naming every replica's id and
// the ws:// URL peers dial it at, used instead of VRAFT_NODE_PEERS when a
// cluster's membership is more convenient to check into version control
// than to pass as environment variables. It does not set this replica's
// own VRAFT_NODE_LISTEN_ADDRESS.
//
// Example:
//
//	servers:
//	  - id: node-1
//	    address: ws://10.0.0.1:7690/raft
//	  - id: node-2
//	    address: ws://10.0.0.2:7690/raft
type ClusterFile struct {
	Servers []ClusterServer `yaml:"servers"`
}

// ClusterServer is one entry in a ClusterFile.
type ClusterServer struct {
	ID      string `yaml:"id"`
	Address string `yaml:"address"`
}

// LoadClusterFile reads and parses a ClusterFile from path.
func LoadClusterFile(path string) (*ClusterFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading cluster file %q: %w", path, err)
	}
	var cf ClusterFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("config: parsing cluster file %q: %w", path, err)
	}
	return &cf, nil
}

// ApplyClusterFile fills in Node.Peers and Node.PeerAddresses from cf,
// excluding selfID from the peer list.
func (c *Config) ApplyClusterFile(cf *ClusterFile, selfID string) {
	c.Node.PeerAddresses = make(map[string]string, len(cf.Servers))
	c.Node.Peers = c.Node.Peers[:0]
	for _, s := range cf.Servers {
		c.Node.PeerAddresses[s.ID] = s.Address
		if s.ID != selfID {
			c.Node.Peers = append(c.Node.Peers, s.ID)
		}
	}
}
