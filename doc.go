/*Package mapper extracts keys, or key-value pairs, from the records of large
delimited text files using a pool of concurrent workers.

The pool is sized from the input's volume: a file of S megabytes spread over
nodes of C megabytes with M maps per node requests ceil(S / C / M) workers.
Records are streamed from the input in batches of M and tokenized
concurrently. Results are folded either into an ordered list of pairs, which
preserves input order, or into a count of records per key.

A single timeout bounds how long a run may spend draining results. When it
is exceeded the run is cancelled, its workers and input are released, and
the results gathered so far are returned alongside ErrAbortedTimeout.

Inputs and outputs may live on local disk or in S3 (s3://bucket/key).
*/
package mapper
