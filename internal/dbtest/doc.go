/*
Package dbtest runs the Neo4j container the store tests exercise, through
testcontainers-go and its neo4j module.

Tests that merely need a working database call SetupNeo4j and then
DatabaseName for a database of their own. Tests that depend on a particular
deployment of Neo4j should configure the testcontainers-go module directly
instead.

When a test fails while developing locally, the container can be kept running
for inspection:

	go test ./neo4jstore -dbtest.inspect

Container tests are skipped in short mode.
*/
package dbtest
