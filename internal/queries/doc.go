// Package queries names the dashboard's cache keys and builds the queries
// that fill them.
//
// Keys nest so invalidation can be scoped:
//
//	["jobs"]                               Jobs()
//	["jobs","list", status, limit, ...]    JobList(params), under JobLists()
//	["jobs","detail", id]                  Job(id), under JobDetails()
//	["results", id, html, screenshot]      Result(id, opts)
//	["health"]                             Health()
//
// A Catalog binds those keys to an api.JobsAPI and to refresh policies taken
// from configuration.
package queries
