// Package cli implements tenantguard-admin, the operator command line.
//
// Commands run against the database named by TENANTGUARD_DB_DRIVER and
// TENANTGUARD_DB_URL:
//
//	tenantguard-admin migrate
//	tenantguard-admin create-org --name Acme --seat-limit 25
//	tenantguard-admin create-company --org 1 --name "Acme Payroll"
//	tenantguard-admin set-seat-limit --org 1 --limit 40
//
// Bootstrapping the first administrator: the principal signs in once, then
//
//	tenantguard-admin platform-role --email root@acme.test --role SUPER_ADMIN
//
// Maintenance:
//
//	tenantguard-admin sweep-expired-roles
//	tenantguard-admin export-audit --org 1 --since 24h > audit.jsonl
//	tenantguard-admin export-audit --since 168h --upload
//	tenantguard-admin schedule --export-schedule "5 0 * * *"
//
// Uploads go to the bucket configured by TENANTGUARD_ARCHIVE_S3_*.
package cli
