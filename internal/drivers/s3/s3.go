// Package s3 implements the s3: locator against AWS S3, grounded on
// original_source/dbcrossbarlib/src/drivers/s3/{local_data,write_local_data,
// prepare_as_destination}.rs. The original shells out to the `aws` CLI for
// listing/upload/download/delete; this port instead calls the native AWS SDK
// for Go (github.com/aws/aws-sdk-go), which the rest of the pack already
// pulls in for exactly this purpose.
package s3

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/dbcrossbar/dbcrossbar-go/internal/args"
	"github.com/dbcrossbar/dbcrossbar-go/internal/caps"
	"github.com/dbcrossbar/dbcrossbar-go/internal/locator"
	"github.com/dbcrossbar/dbcrossbar-go/internal/pgtype"
	"github.com/dbcrossbar/dbcrossbar-go/internal/retry"
	"github.com/dbcrossbar/dbcrossbar-go/internal/schema"
	"github.com/dbcrossbar/dbcrossbar-go/internal/streamutil"
)

// Scheme is this driver's registered locator scheme.
const Scheme = "s3:"

// Locator names an s3:// directory (always ending in "/", per
// original_source's GsLocator/S3Locator FromStr): a CsvStream is uploaded as
// one "<name>.csv" object beneath it.
type Locator struct {
	bucket string
	prefix string // always ends in "/" once validated
}

func (l Locator) String() string         { return fmt.Sprintf("s3://%s/%s", l.bucket, l.prefix) }
func (l Locator) Scheme() string         { return Scheme }
func (l Locator) RedactedString() string { return l.String() }

func (l Locator) key(name string) string {
	return l.prefix + name
}

// Factory parses an s3: locator tail ("//bucket/prefix/").
func Factory(tail string) (locator.Locator, locator.Driver, error) {
	u, err := url.Parse(tail)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing s3 locator %q: %w", tail, err)
	}
	if u.Host == "" {
		return nil, nil, fmt.Errorf("s3 locator %q must name a bucket", tail)
	}
	prefix := strings.TrimPrefix(u.Path, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		return nil, nil, fmt.Errorf("s3 locator %q must end in '/'", tail)
	}
	loc := Locator{bucket: u.Host, prefix: prefix}
	return loc, Driver{loc: loc}, nil
}

// Driver implements locator.Driver and locator.Remover for Locator.
type Driver struct {
	loc     Locator
	limiter *rate.Limiter // nil means unlimited
}

// WithRateLimit returns a copy of d that throttles S3 API calls to at most
// eventsPerSecond, for callers that need to stay under an account's request
// quota across a large listing (spec.md's ambient rate-limiting concern).
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

func (d Driver) session() (*session.Session, error) {
	sess, err := session.NewSessionWithOptions(session.Options{SharedConfigState: session.SharedConfigEnable})
	if err != nil {
		return nil, fmt.Errorf("creating AWS session: %w", err)
	}
	return sess, nil
}

func (d Driver) Schema(ctx context.Context, source args.SourceArguments) (*schema.Schema, error) {
	return nil, nil
}

func (d Driver) WriteSchema(ctx context.Context, sch schema.Schema, ifExists args.IfExists, dest args.DestinationArguments) error {
	return locator.ErrUnsupported{Driver: "s3", Operation: "write_schema"}
}

func (d Driver) LocalData(ctx context.Context, shared args.SharedArguments, source args.SourceArguments) (<-chan streamutil.CsvStream, error) {
	sess, err := d.session()
	if err != nil {
		return nil, err
	}
	client := s3.New(sess)

	keys, err := d.listCsvKeys(ctx, client)
	if err != nil {
		return nil, err
	}

	out := make(chan streamutil.CsvStream)
	go func() {
		defer close(out)
		for _, key := range keys {
			if err := d.wait(ctx); err != nil {
				return
			}
			name := strings.TrimSuffix(strings.TrimPrefix(key, d.loc.prefix), ".csv")
			body, err := d.getObject(ctx, client, key)
			if err != nil {
				return
			}
			select {
			case out <- streamutil.CsvStream{Name: name, Data: streamFromReadCloser(body)}:
			case <-ctx.Done():
				body.Close()
				return
			}
		}
	}()
	return out, nil
}

func (d Driver) listCsvKeys(ctx context.Context, client *s3.S3) ([]string, error) {
	var keys []string
	err := client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(d.loc.bucket),
		Prefix: aws.String(d.loc.prefix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			key := aws.StringValue(obj.Key)
			if strings.HasSuffix(key, "/") {
				continue // directory marker, not a data object
			}
			keys = append(keys, key)
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("listing s3://%s/%s: %w", d.loc.bucket, d.loc.prefix, err)
	}
	return keys, nil
}

func (d Driver) getObject(ctx context.Context, client *s3.S3, key string) (io.ReadCloser, error) {
	body, err := retry.Wait(ctx, retry.DefaultOptions(), func(ctx context.Context) retry.Result[io.ReadCloser] {
		out, err := client.GetObjectWithContext(ctx, &s3.GetObjectInput{Bucket: aws.String(d.loc.bucket), Key: aws.String(key)})
		if err != nil {
			if isThrottling(err) {
				return retry.Temporary[io.ReadCloser](err)
			}
			return retry.Permanent[io.ReadCloser](err)
		}
		return retry.Done(out.Body)
	})
	if err != nil {
		return nil, fmt.Errorf("downloading s3://%s/%s: %w", d.loc.bucket, key, err)
	}
	return body, nil
}

func isThrottling(err error) bool {
	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		return false
	}
	switch aerr.Code() {
	case "SlowDown", "RequestLimitExceeded", "Throttling", "403":
		return true
	}
	return false
}

// streamFromReadCloser bridges an io.ReadCloser into a ByteStream, closing
// it once fully drained (unlike streamutil.FromReader, which never closes
// the reader it is given).
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
	sess, err := d.session()
	if err != nil {
		return nil, err
	}
	if dest.IfExists().Kind == args.IfExistsOverwrite {
		if err := d.Remove(ctx, d.loc); err != nil {
			return nil, err
		}
	}

	uploader := s3manager.NewUploader(sess)
	out := make(chan streamutil.Future[locator.Locator])
	go func() {
		defer close(out)
		for stream := range data {
			stream := stream
			future := streamutil.Future[locator.Locator](func(ctx context.Context) (locator.Locator, error) {
				if err := d.wait(ctx); err != nil {
					return nil, err
				}
				key := d.loc.key(stream.Filename())
				_, err := uploader.UploadWithContext(ctx, &s3manager.UploadInput{
					Bucket: aws.String(d.loc.bucket),
					Key:    aws.String(key),
					Body:   streamutil.NewStreamReader(stream.Data),
				})
				if err != nil {
					return nil, fmt.Errorf("uploading s3://%s/%s: %w", d.loc.bucket, key, err)
				}
				return Locator{bucket: d.loc.bucket, prefix: key}, nil
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

// postgresWireSource is the shape internal/drivers/redshift.Locator exposes.
// It is declared locally (structural typing) rather than imported, since
// redshift already imports this package for S3 staging and a reverse import
// would cycle; this mirrors the original's placement of the UNLOAD fast path
// inside the S3 driver file, downcasting its source to a RedshiftLocator.
type postgresWireSource interface {
	ConnectionDSN() string
	TableName() string
}

// SupportsWriteRemoteData reports whether source can be unloaded straight
// into this bucket with Redshift's own UNLOAD command, skipping the local
// round-trip, grounded on write_remote_data.rs's S3Locator::write_remote_data
// (which is reachable only when source downcasts to RedshiftLocator).
func (d Driver) SupportsWriteRemoteData(source locator.Locator) bool {
	_, ok := source.(postgresWireSource)
	return ok && source.Scheme() == "redshift:"
}

func (d Driver) WriteRemoteData(ctx context.Context, source locator.Locator, shared args.SharedArguments, sourceArgs args.SourceArguments, dest args.DestinationArguments) ([]locator.Locator, error) {
	pw, ok := source.(postgresWireSource)
	if !ok || source.Scheme() != "redshift:" {
		return nil, locator.ErrUnsupported{Driver: "s3", Operation: "write_remote_data"}
	}

	if dest.IfExists().Kind == args.IfExistsOverwrite {
		if err := d.Remove(ctx, d.loc); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("postgres", pw.ConnectionDSN())
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", source.RedactedString(), err)
	}
	defer db.Close()

	selectSQL := "SELECT * FROM " + quoteRedshiftTable(pw.TableName())
	if sourceArgs.Where() != "" {
		selectSQL += " WHERE " + sourceArgs.Where()
	}

	credentials, err := redshiftCredentialsClause(sourceArgs.DriverArgs())
	if err != nil {
		return nil, err
	}

	unloadSQL := fmt.Sprintf("UNLOAD (%s) TO %s CREDENTIALS %s HEADER FORMAT CSV",
		pgtype.Quote(selectSQL), pgtype.Quote(d.loc.String()), pgtype.Quote(credentials))
	if partnerSQL, ok := sourceArgs.DriverArgs().Lookup("partner_sql"); ok {
		unloadSQL = partnerSQL + ";\n" + unloadSQL
	}
	if _, err := db.ExecContext(ctx, unloadSQL); err != nil {
		return nil, fmt.Errorf("running UNLOAD against %s: %w", source.RedactedString(), err)
	}
	return []locator.Locator{d.loc}, nil
}

// quoteRedshiftTable double-quotes a possibly schema-qualified "ns.table"
// name, mirroring internal/drivers/redshift.Locator.quotedTable (duplicated
// here rather than exported, since the two packages otherwise share no
// quoting logic and a one-line helper does not justify a shared dependency).
func quoteRedshiftTable(table string) string {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return schema.MustIdentifier(parts[0]).Quoted('"') + "." + schema.MustIdentifier(parts[1]).Quoted('"')
	}
	return schema.MustIdentifier(parts[0]).Quoted('"')
}

// redshiftCredentialsClause is a duplicate of
// internal/drivers/redshift.credentialsClause: both packages need it, and
// sharing it would require a new dependency edge in one direction or the
// other, trading a few lines of duplication for a clean one-way import graph
// (redshift -> s3, never the reverse).
func redshiftCredentialsClause(driverArgs args.DriverArguments) (string, error) {
	if v, ok := driverArgs.Lookup("credentials"); ok {
		return v, nil
	}
	if role, ok := driverArgs.Lookup("iam_role"); ok {
		return "aws_iam_role=" + role, nil
	}
	accessKey := os.Getenv("AWS_ACCESS_KEY_ID")
	secretKey := os.Getenv("AWS_SECRET_ACCESS_KEY")
	if accessKey == "" || secretKey == "" {
		return "", fmt.Errorf("redshift UNLOAD needs AWS credentials: pass --from-arg credentials=... or set AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY")
	}
	clause := fmt.Sprintf("aws_access_key_id=%s;aws_secret_access_key=%s", accessKey, secretKey)
	if token := os.Getenv("AWS_SESSION_TOKEN"); token != "" {
		clause += ";token=" + token
	}
	return clause, nil
}

func (d Driver) Count(ctx context.Context, shared args.SharedArguments, source args.SourceArguments) (int64, error) {
	return 0, locator.ErrUnsupported{Driver: "s3", Operation: "count"}
}

// Remove implements locator.Remover: it deletes every object beneath loc's
// prefix, batched per S3's 1000-key DeleteObjects limit, grounded on
// prepare_as_destination.rs's "aws s3 rm --recursive".
func (d Driver) Remove(ctx context.Context, loc locator.Locator) error {
	target, ok := loc.(Locator)
	if !ok {
		return fmt.Errorf("s3 driver cannot remove a %T", loc)
	}
	sess, err := d.session()
	if err != nil {
		return err
	}
	client := s3.New(sess)

	keys, err := Driver{loc: target}.listCsvKeysAll(ctx, client)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		logrus.WithField("location", fmt.Sprintf("s3://%s/%s", target.bucket, target.prefix)).
			Warn("nothing to remove: no objects under prefix")
		return nil
	}
	for start := 0; start < len(keys); start += 1000 {
		end := start + 1000
		if end > len(keys) {
			end = len(keys)
		}
		objects := make([]*s3.ObjectIdentifier, end-start)
		for i, key := range keys[start:end] {
			objects[i] = &s3.ObjectIdentifier{Key: aws.String(key)}
		}
		_, err := client.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(target.bucket),
			Delete: &s3.Delete{Objects: objects},
		})
		if err != nil {
			return fmt.Errorf("deleting objects under s3://%s/%s: %w", target.bucket, target.prefix, err)
		}
	}
	return nil
}

// listCsvKeysAll lists every key beneath the locator's prefix, including
// directory markers, unlike listCsvKeys which is used for CSV reading.
func (d Driver) listCsvKeysAll(ctx context.Context, client *s3.S3) ([]string, error) {
	var keys []string
	err := client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(d.loc.bucket),
		Prefix: aws.String(d.loc.prefix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			keys = append(keys, aws.StringValue(obj.Key))
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("listing s3://%s/%s: %w", d.loc.bucket, d.loc.prefix, err)
	}
	return keys, nil
}
