package export

import (
	"net/url"

	"github.com/doujins-org/plankit/report"
)

// ExportFolder is the subfolder of the upload folder the default jobs
// write to.
const ExportFolder = "export"

// Job is one file produced by an export run. Exactly one of SQL and Report
// is set. SQL is a `COPY ... TO STDOUT` statement; Report is rendered with
// the query parameters in Data.
type Job struct {
	Filename string
	Folder   string
	SQL      string
	Report   report.Report
	Data     url.Values
}

// overviewData are the parameters of the report jobs: a six month horizon
// from the current date in weekly buckets.
func overviewData() url.Values {
	return url.Values{
		"format":        {report.FormatCSVList},
		"buckets":       {"week"},
		"horizontype":   {"True"},
		"horizonunit":   {"month"},
		"horizonlength": {"6"},
	}
}

// DefaultJobs returns the files exported by a plain run.
func DefaultJobs() []Job {
	return []Job{
		{
			Filename: "purchaseorder.csv",
			Folder:   ExportFolder,
			SQL: `COPY
			(select source, lastmodified, reference, status, reference, quantity,
			to_char(startdate,'YYYY-MM-DD HH24:MI:SS') as "ordering date",
			to_char(enddate,'YYYY-MM-DD HH24:MI:SS') as "receipt date",
			criticality, EXTRACT(EPOCH FROM delay) as delay,
			owner_id, item_id, location_id, supplier_id from operationplan
			where status <> 'confirmed' and type='PO')
			TO STDOUT WITH CSV HEADER`,
		},
		{
			Filename: "distributionorder.csv",
			Folder:   ExportFolder,
			SQL: `COPY
			(select source, lastmodified, reference, status, reference, quantity,
			to_char(startdate,'YYYY-MM-DD HH24:MI:SS') as "ordering date",
			to_char(enddate,'YYYY-MM-DD HH24:MI:SS') as "receipt date",
			criticality, EXTRACT(EPOCH FROM delay) as delay,
			plan, destination_id, item_id, origin_id from operationplan
			where status <> 'confirmed' and type='DO')
			TO STDOUT WITH CSV HEADER`,
		},
		{
			Filename: "manufacturingorder.csv",
			Folder:   ExportFolder,
			SQL: `COPY
			(select source, lastmodified, reference, status, reference, quantity,
			to_char(startdate,'YYYY-MM-DD HH24:MI:SS') as startdate,
			to_char(enddate,'YYYY-MM-DD HH24:MI:SS') as enddate,
			criticality, EXTRACT(EPOCH FROM delay) as delay,
			operation_id, owner_id, plan, item_id
			from operationplan where status <> 'confirmed' and type='MO')
			TO STDOUT WITH CSV HEADER`,
		},
		{
			Filename: "problems.csv",
			Folder:   ExportFolder,
			SQL: `COPY (
			select entity, owner, name, description, startdate, enddate, weight
			from out_problem
			where name <> 'material excess'
			order by entity, name, startdate
			) TO STDOUT WITH CSV HEADER`,
		},
		{
			Filename: "operationplanmaterial.csv",
			Folder:   ExportFolder,
			SQL: `COPY (
			select item_id as item, location_id as location, quantity,
			flowdate as date, onhand, operationplan_id as operationplan, status
			from operationplanmaterial
			order by item_id, location_id, flowdate, quantity desc
			) TO STDOUT WITH CSV HEADER`,
		},
		{
			Filename: "operationplanresource.csv",
			Folder:   ExportFolder,
			SQL: `COPY (
			select resource_id as resource, startdate, enddate, setup,
			operationplan_id as operationplan, status
			from operationplanresource
			order by resource_id, startdate, quantity
			) TO STDOUT WITH CSV HEADER`,
		},
		{
			Filename: "capacityreport.csv",
			Folder:   ExportFolder,
			Report:   report.ResourceOverview{},
			Data:     overviewData(),
		},
		{
			Filename: "inventoryreport.csv",
			Folder:   ExportFolder,
			Report:   report.BufferOverview{},
			Data:     overviewData(),
		},
	}
}
