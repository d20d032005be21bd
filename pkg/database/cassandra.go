package database

import (
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"peerpractice-backend/pkg/env"
)

// CassandraDB connection wrapper
type CassandraDB struct {
	Session *gocql.Session
	Cluster *gocql.ClusterConfig
}

// CassandraConfig holds Cassandra connection configuration
type CassandraConfig struct {
	Hosts    []string      // Cassandra node addresses
	Keyspace string        // Keyspace to use
	Username string        // Optional authentication
	Password string        // Optional authentication
	Timeout  time.Duration // Connection timeout
}

// NewCassandraDB creates a new Cassandra session
func NewCassandraDB(config *CassandraConfig) (*CassandraDB, error) {
	cluster := gocql.NewCluster(config.Hosts...)
	cluster.Keyspace = config.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = config.Timeout

	cluster.NumConns = 2 // Connections per host
	cluster.PoolConfig.HostSelectionPolicy = gocql.TokenAwareHostPolicy(gocql.RoundRobinHostPolicy())

	if config.Username != "" && config.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: config.Username,
			Password: config.Password,
		}
	}

	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		NumRetries: 3,
		Min:        time.Second,
		Max:        10 * time.Second,
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create Cassandra session: %w", err)
	}

	return &CassandraDB{
		Session: session,
		Cluster: cluster,
	}, nil
}

// Close closes the Cassandra session
func (db *CassandraDB) Close() {
	if db.Session != nil {
		db.Session.Close()
	}
}

// Ping tests the connection
func (db *CassandraDB) Ping() error {
	query := "SELECT now() FROM system.local"
	if err := db.Session.Query(query).Exec(); err != nil {
		return fmt.Errorf("cassandra ping failed: %w", err)
	}
	return nil
}

// NewCassandraDBFromEnv creates a connection from environment variables
func NewCassandraDBFromEnv() (*CassandraDB, error) {
	config := &CassandraConfig{
		Hosts:    []string{env.GetString("CASSANDRA_HOST", "localhost")},
		Keyspace: env.GetString("CASSANDRA_KEYSPACE", "peerpractice_ks"),
		Username: env.GetString("CASSANDRA_USER", ""),
		Password: env.GetStringFromFile("CASSANDRA_PASSWORD", ""),
		Timeout:  10 * time.Second,
	}

	return NewCassandraDB(config)
}
