// Package gs implements the gs: locator against Google Cloud Storage,
// grounded on original_source/dbcrossbarlib/src/drivers/gs/{mod,local_data,
// write_local_data,prepare_as_destination}.rs. The original shells out to
// `gsutil`; this port uses cloud.google.com/go/storage directly, the native
// client library the rest of the pack already depends on.
package gs

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	bigqueryapi "google.golang.org/api/bigquery/v2"
	"google.golang.org/api/iterator"

	"github.com/dbcrossbar/dbcrossbar-go/internal/args"
	"github.com/dbcrossbar/dbcrossbar-go/internal/caps"
	"github.com/dbcrossbar/dbcrossbar-go/internal/locator"
	"github.com/dbcrossbar/dbcrossbar-go/internal/schema"
	"github.com/dbcrossbar/dbcrossbar-go/internal/streamutil"
)

// Scheme is this driver's registered locator scheme.
const Scheme = "gs:"

// Locator names a gs:// directory (always ending in "/"): a CsvStream is
// uploaded as one "<name>.csv" object beneath it.
type Locator struct {
	bucket string
	prefix string
}

func (l Locator) String() string         { return fmt.Sprintf("gs://%s/%s", l.bucket, l.prefix) }
func (l Locator) Scheme() string         { return Scheme }
func (l Locator) RedactedString() string { return l.String() }

func (l Locator) object(name string) string {
	return l.prefix + name
}

// Factory parses a gs: locator tail ("//bucket/prefix/").
func Factory(tail string) (locator.Locator, locator.Driver, error) {
	u, err := url.Parse(tail)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing gs locator %q: %w", tail, err)
	}
	if u.Host == "" {
		return nil, nil, fmt.Errorf("gs locator %q must name a bucket", tail)
	}
	prefix := strings.TrimPrefix(u.Path, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		return nil, nil, fmt.Errorf("gs locator %q must end in '/'", tail)
	}
	loc := Locator{bucket: u.Host, prefix: prefix}
	return loc, Driver{loc: loc}, nil
}

// Driver implements locator.Driver and locator.Remover for Locator.
type Driver struct {
	loc     Locator
	limiter *rate.Limiter
}

// WithRateLimit returns a copy of d that throttles GCS API calls to at most
// eventsPerSecond, mirroring the s3 driver's ambient rate-limiting concern.
func (d Driver) WithRateLimit(eventsPerSecond float64) Driver {
	d.limiter = rate.NewLimiter(rate.Limit(eventsPerSecond), 1)
	return d
}

func (d Driver) wait(ctx context.Context) error {
	if d.limiter == nil {
		return nil
	}
	return d.limiter.Wait(ctx)
}

func (d Driver) Features() caps.Features {
	return caps.With(caps.FeatureLocalData, caps.FeatureWriteLocalData,
		caps.FeatureIfExistsOverwrite, caps.FeatureIfExistsError)
}

func (d Driver) client(ctx context.Context) (*storage.Client, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating Cloud Storage client: %w", err)
	}
	return client, nil
}

func (d Driver) Schema(ctx context.Context, source args.SourceArguments) (*schema.Schema, error) {
	return nil, nil
}

func (d Driver) WriteSchema(ctx context.Context, sch schema.Schema, ifExists args.IfExists, dest args.DestinationArguments) error {
	return locator.ErrUnsupported{Driver: "gs", Operation: "write_schema"}
}

func (d Driver) LocalData(ctx context.Context, shared args.SharedArguments, source args.SourceArguments) (<-chan streamutil.CsvStream, error) {
	client, err := d.client(ctx)
	if err != nil {
		return nil, err
	}
	bucket := client.Bucket(d.loc.bucket)

	out := make(chan streamutil.CsvStream)
	go func() {
		defer close(out)
		defer client.Close()

		it := bucket.Objects(ctx, &storage.Query{Prefix: d.loc.prefix})
		for {
			attrs, err := it.Next()
			if err == iterator.Done {
				return
			}
			if err != nil {
				return
			}
			if strings.HasSuffix(attrs.Name, "/") {
				continue
			}
			if err := d.wait(ctx); err != nil {
				return
			}

			r, err := bucket.Object(attrs.Name).NewReader(ctx)
			if err != nil {
				return
			}
			name := strings.TrimSuffix(strings.TrimPrefix(attrs.Name, d.loc.prefix), ".csv")
			select {
			case out <- streamutil.CsvStream{Name: name, Data: streamFromReadCloser(r)}:
			case <-ctx.Done():
				r.Close()
				return
			}
		}
	}()
	return out, nil
}

// streamFromReadCloser bridges an io.ReadCloser into a ByteStream, closing
// it once fully drained.
func streamFromReadCloser(body io.ReadCloser) streamutil.ByteStream {
	w, stream := streamutil.NewBytePipe()
	go func() {
		defer body.Close()
		buf := make([]byte, 64*1024)
		for {
			n, err := body.Read(buf)
			if n > 0 {
				if _, werr := w.Write(buf[:n]); werr != nil {
					return
				}
			}
			if err != nil {
				if err == io.EOF {
					w.Close()
				} else {
					w.CloseWithError(err)
				}
				return
			}
		}
	}()
	return stream
}

func (d Driver) WriteLocalData(ctx context.Context, data <-chan streamutil.CsvStream, shared args.SharedArguments, dest args.DestinationArguments) (<-chan streamutil.Future[locator.Locator], error) {
	if dest.IfExists().Kind == args.IfExistsOverwrite {
		if err := d.Remove(ctx, d.loc); err != nil {
			return nil, err
		}
	}

	client, err := d.client(ctx)
	if err != nil {
		return nil, err
	}
	bucket := client.Bucket(d.loc.bucket)

	out := make(chan streamutil.Future[locator.Locator])
	go func() {
		defer close(out)
		defer client.Close()
		for stream := range data {
			stream := stream
			future := streamutil.Future[locator.Locator](func(ctx context.Context) (locator.Locator, error) {
				if err := d.wait(ctx); err != nil {
					return nil, err
				}
				name := d.loc.object(stream.Filename())
				w := bucket.Object(name).NewWriter(ctx)
				if _, err := io.Copy(w, streamutil.NewStreamReader(stream.Data)); err != nil {
					w.Close()
					return nil, fmt.Errorf("uploading gs://%s/%s: %w", d.loc.bucket, name, err)
				}
				if err := w.Close(); err != nil {
					return nil, fmt.Errorf("uploading gs://%s/%s: %w", d.loc.bucket, name, err)
				}
				return Locator{bucket: d.loc.bucket, prefix: name}, nil
			})
			select {
			case out <- future:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// bigQuerySource is satisfied by bigquery.Locator without this package
// importing internal/drivers/bigquery (which itself imports internal/drivers/gs
// for its own staging hop; importing it back here would cycle).
type bigQuerySource interface {
	ProjectDatasetTable() (project, dataset, table string)
}

// SupportsWriteRemoteData reports whether source can be extracted straight
// into this gs: location without first downloading it locally, grounded on
// GsLocator::supports_write_remote_data, which the original source notes is
// "only true if source is BigQueryLocator".
func (d Driver) SupportsWriteRemoteData(source locator.Locator) bool {
	_, ok := source.(bigQuerySource)
	return ok && source.Scheme() == "bigquery:"
}

func (d Driver) WriteRemoteData(ctx context.Context, source locator.Locator, shared args.SharedArguments, sourceArgs args.SourceArguments, dest args.DestinationArguments) ([]locator.Locator, error) {
	bqSource, ok := source.(bigQuerySource)
	if !ok || source.Scheme() != "bigquery:" {
		return nil, locator.ErrUnsupported{Driver: "gs", Operation: "write_remote_data"}
	}
	if dest.IfExists().Kind == args.IfExistsOverwrite {
		if err := d.Remove(ctx, d.loc); err != nil {
			return nil, err
		}
	}

	svc, err := bigqueryService(ctx)
	if err != nil {
		return nil, err
	}
	project, dataset, table := bqSource.ProjectDatasetTable()
	job := &bigqueryapi.Job{
		Configuration: &bigqueryapi.JobConfiguration{
			Extract: &bigqueryapi.JobConfigurationExtract{
				SourceTable: &bigqueryapi.TableReference{
					ProjectId: project,
					DatasetId: dataset,
					TableId:   table,
				},
				DestinationUris:   []string{d.loc.String() + "*.csv"},
				DestinationFormat: "CSV",
				PrintHeader:       true,
			},
		},
	}
	if err := runBigQueryJob(ctx, svc, project, job); err != nil {
		return nil, err
	}
	return []locator.Locator{d.loc}, nil
}

// bigqueryService and runBigQueryJob duplicate internal/drivers/bigquery's
// own job-submission helpers. The two packages stage through each other
// (bigquery.Driver.LocalData extracts into a gs: location; gs.Driver's
// write_remote_data here extracts directly into its own location), so
// neither can import the other without a cycle; see DESIGN.md.
func bigqueryService(ctx context.Context) (*bigqueryapi.Service, error) {
	svc, err := bigqueryapi.NewService(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating BigQuery client: %w", err)
	}
	return svc, nil
}

func runBigQueryJob(ctx context.Context, svc *bigqueryapi.Service, project string, job *bigqueryapi.Job) error {
	inserted, err := svc.Jobs.Insert(project, job).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("starting BigQuery job: %w", err)
	}
	for {
		got, err := svc.Jobs.Get(project, inserted.JobReference.JobId).Location(inserted.JobReference.Location).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("polling BigQuery job %s: %w", inserted.JobReference.JobId, err)
		}
		if got.Status.State == "DONE" {
			if got.Status.ErrorResult != nil {
				return fmt.Errorf("BigQuery job %s failed: %s", inserted.JobReference.JobId, got.Status.ErrorResult.Message)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

func (d Driver) Count(ctx context.Context, shared args.SharedArguments, source args.SourceArguments) (int64, error) {
	return 0, locator.ErrUnsupported{Driver: "gs", Operation: "count"}
}

// Remove implements locator.Remover: it deletes every object beneath loc's
// prefix, grounded on prepare_as_destination.rs's "gsutil rm -f **".
func (d Driver) Remove(ctx context.Context, loc locator.Locator) error {
	target, ok := loc.(Locator)
	if !ok {
		return fmt.Errorf("gs driver cannot remove a %T", loc)
	}
	client, err := d.client(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	bucket := client.Bucket(target.bucket)
	it := bucket.Objects(ctx, &storage.Query{Prefix: target.prefix})
	found := 0
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			if found == 0 {
				logrus.WithField("location", fmt.Sprintf("gs://%s/%s", target.bucket, target.prefix)).
					Warn("nothing to remove: no objects under prefix")
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("listing gs://%s/%s: %w", target.bucket, target.prefix, err)
		}
		found++
		if err := bucket.Object(attrs.Name).Delete(ctx); err != nil && err != storage.ErrObjectNotExist {
			return fmt.Errorf("deleting gs://%s/%s: %w", target.bucket, attrs.Name, err)
		}
	}
}
