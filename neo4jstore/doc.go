/*
Package neo4jstore keeps vectis entity documents in a Neo4j database.

Every entity is stored as one node carrying the Document label and a label
derived from its discriminator (see Label). The node is keyed by the entity's
partition key and id, and holds the document produced by a codec.Codec, the
entity's fingerprint, and bookkeeping timestamps:

	(:Document:SchemeRecord {_pk, _id, _discriminator, _fingerprint, _view_version, _deleted, _body, _created_at, _last_modified})

A dataset is stored as a node of its own, holding the whole dataset document,
connected to the documents of its owner and items:

	(:Document:GroupedDataset)-[:HOLDS]->(:Document:Loan)

Writing a document whose fingerprint is unchanged leaves the node untouched, so
replaying the same history twice does not modify the graph.

Call BootstrapDatabase once before using a database with a Store.
*/
package neo4jstore
